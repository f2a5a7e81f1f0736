package contacts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/syncwise/crmsync/contacts"
	"github.com/syncwise/crmsync/testutil"
)

func TestSearchPageFiltersByCutoff(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	crm := testutil.NewFakeCRM([]contacts.Contact{
		testutil.NewRemoteContact("101", contacts.Properties{Email: "old@example.com"}, base.Add(-48*time.Hour)),
		testutil.NewRemoteContact("102", contacts.Properties{Email: "edge@example.com"}, base),
		testutil.NewRemoteContact("103", contacts.Properties{Email: "new@example.com"}, base.Add(6*time.Hour)),
	})
	defer crm.Close()

	out, err := contacts.SearchPage(contacts.SearchInput{
		Session:       crm.Session(),
		ModifiedSince: base,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), out.Total)
	require.Len(t, out.Page.Contacts, 2)

	// Cutoff is inclusive and results are oldest first.
	require.Equal(t, "102", out.Page.Contacts[0].ID)
	require.Equal(t, "103", out.Page.Contacts[1].ID)
	require.Empty(t, out.Page.Cursor)
}

func TestSearchPagePaginates(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var cs []contacts.Contact
	for i := 0; i < 5; i++ {
		cs = append(cs, testutil.NewRemoteContact(
			string(rune('a'+i))+"02",
			contacts.Properties{FirstName: "Searched"},
			base.Add(time.Duration(i)*time.Minute),
		))
	}

	crm := testutil.NewFakeCRM(cs)
	defer crm.Close()

	first, err := contacts.SearchPage(contacts.SearchInput{
		Session:       crm.Session(),
		ModifiedSince: base,
		PageSize:      3,
	})
	require.NoError(t, err)
	require.Len(t, first.Page.Contacts, 3)
	require.NotEmpty(t, first.Page.Cursor)

	second, err := contacts.SearchPage(contacts.SearchInput{
		Session:       crm.Session(),
		ModifiedSince: base,
		PageSize:      3,
		Cursor:        first.Page.Cursor,
	})
	require.NoError(t, err)
	require.Len(t, second.Page.Contacts, 2)
	require.Empty(t, second.Page.Cursor)
}

func TestSearchPageRequiresCutoff(t *testing.T) {
	t.Parallel()

	crm := testutil.NewFakeCRM(nil)
	defer crm.Close()

	_, err := contacts.SearchPage(contacts.SearchInput{Session: crm.Session()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cutoff")
}
