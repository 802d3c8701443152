package batch

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
)

// Record is one subject row. Err is set when the row could not be turned
// into valid birth data; such rows are reported, never rectified.
type Record struct {
	Line  int
	Birth *model.BirthData
	Err   error
}

// columnAliases maps accepted header spellings to canonical columns.
var columnAliases = map[string]string{
	"name":      "name",
	"subject":   "name",
	"estimate":  "estimate",
	"birth":     "estimate",
	"datetime":  "estimate",
	"latitude":  "latitude",
	"lat":       "latitude",
	"longitude": "longitude",
	"lon":       "longitude",
	"lng":       "longitude",
	"timezone":  "timezone",
	"tz":        "timezone",
}

var requiredColumns = []string{"estimate", "latitude", "longitude"}

// ParseRecords maps rows to records using the first row as header. Blank
// rows are skipped. Line numbers are 1-based and count the header.
func ParseRecords(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, eris.New("batch: input is empty")
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if col, ok := columnAliases[key]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("batch: header is missing column(s) %s", strings.Join(missing, ", "))
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []Record
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := Record{Line: n + 2}
		rec.Birth, rec.Err = parseBirth(
			field(row, "name"),
			field(row, "estimate"),
			field(row, "latitude"),
			field(row, "longitude"),
			field(row, "timezone"),
		)
		records = append(records, rec)
	}
	return records, nil
}

func parseBirth(name, estimate, lat, lon, tz string) (*model.BirthData, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, eris.Wrapf(model.ErrInvalidBirthData, "batch: latitude %q", lat)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, eris.Wrapf(model.ErrInvalidBirthData, "batch: longitude %q", lon)
	}
	instant, err := model.ParseEstimate(estimate, tz)
	if err != nil {
		return nil, err
	}

	b := &model.BirthData{
		Name:     name,
		Estimate: instant,
		Location: model.Location{Latitude: latitude, Longitude: longitude, Timezone: tz},
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
