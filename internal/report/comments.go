package report

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerline/ledgerline/internal/aging"
)

var commentPrinter = message.NewPrinter(language.English)

// systemComments renders the audit trail: contributions grouped by
// bucket in display order, each group listing its contributions in the
// order they were produced, one line per contribution as
// "<reference> (<kind>, ID: <id>) = <signed amount>".
func systemComments(contribs []aging.Contribution, buckets []string) string {
	grouped := make(map[string][]aging.Contribution, len(buckets))
	for _, c := range contribs {
		grouped[c.Bucket] = append(grouped[c.Bucket], c)
	}
	var b strings.Builder
	for _, bucket := range buckets {
		entries := grouped[bucket]
		if len(entries) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(bucket)
		b.WriteString(":\n")
		for _, c := range entries {
			ref := c.Reference
			if ref == "" {
				ref = c.ItemID
			}
			commentPrinter.Fprintf(&b, "%s (%s, ID: %s) = %.2f\n", ref, c.Kind.Label(), c.ItemID, c.Amount)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
