package imap

import (
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
)

func (m *mailbox) SearchAll() ([]uint32, error) {
	return m.search(imap.NewSearchCriteria())
}

func (m *mailbox) SearchHeaders(fields []string, values []string) ([]uint32, error) {
	criteria := headerCriteria(fields, values)
	if criteria == nil {
		return nil, nil
	}
	return m.search(criteria)
}

func (m *mailbox) search(criteria *imap.SearchCriteria) ([]uint32, error) {
	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", m.name, err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// headerCriteria builds an OR of one HEADER criterion per field/value pair.
// Returns nil when there is nothing to match.
func headerCriteria(fields []string, values []string) *imap.SearchCriteria {
	var terms []*imap.SearchCriteria
	for _, field := range fields {
		for _, value := range values {
			if value == "" {
				continue
			}
			c := imap.NewSearchCriteria()
			c.Header.Add(field, value)
			terms = append(terms, c)
		}
	}
	return orCriteria(terms)
}

// orCriteria folds terms into nested ORs: a OR (b OR (c ...)).
func orCriteria(terms []*imap.SearchCriteria) *imap.SearchCriteria {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	}
	c := imap.NewSearchCriteria()
	c.Or = [][2]*imap.SearchCriteria{{terms[0], orCriteria(terms[1:])}}
	return c
}

// LastUIDs returns at most n of the highest uids, keeping ascending order.
func LastUIDs(uids []uint32, n int) []uint32 {
	if n <= 0 || len(uids) <= n {
		return uids
	}
	return uids[len(uids)-n:]
}
