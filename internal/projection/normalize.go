package projection

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// yearPattern matches plausible genealogical event years (1500-2099)
var yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// eventFields derives the indexable event year and place from a fact's
// statement. Free-text statements follow the "<name> born|died <year> in
// <place>" shape produced by the extractor; anything else indexes as zero
// year and empty place.
func eventFields(f *model.Fact) (int, string) {
	year := 0
	if m := yearPattern.FindString(f.Statement); m != "" {
		year, _ = strconv.Atoi(m)
	}

	place := ""
	if idx := strings.LastIndex(f.Statement, " in "); idx >= 0 {
		place = strings.TrimRight(strings.TrimSpace(f.Statement[idx+4:]), ".")
	}
	return year, place
}
