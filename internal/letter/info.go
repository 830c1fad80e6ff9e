package letter

import (
	"strings"
)

// Info identifies one row of a configuration listing. Index is the row's
// position on the page and is only valid until the listing is read again.
type Info struct {
	Name    string
	Index   int
	Channel string
}

// UniqueName is the logical identifier used as the status ledger key
func (i Info) UniqueName() string {
	if i.Channel != "" {
		return i.Name + "-" + i.Channel
	}
	return i.Name
}

// Filename derives the relative file path for the letter, e.g.
// "Overdue Notice" on channel "SMS" becomes "./Overdue_Notice-SMS.xsl".
func (i Info) Filename() string {
	filename := "./" + strings.ReplaceAll(i.UniqueName(), " ", "_")
	if !strings.HasSuffix(filename, ".xsl") {
		filename += ".xsl"
	}
	return filename
}

// Exclusion decides whether a letter is left out of a pull
type Exclusion func(uniqueName string) bool

// ExcludeSuffixes returns an Exclusion matching any of the given suffixes.
// With no suffixes nothing is excluded.
func ExcludeSuffixes(suffixes []string) Exclusion {
	return func(uniqueName string) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(uniqueName, s) {
				return true
			}
		}
		return false
	}
}
