package postgres

import (
	"fmt"
	"strings"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
)

// whereBuilder accumulates SQL predicates and their positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(cond string) { w.conds = append(w.conds, cond) }

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, query.All)
}

// buildWhere translates a filter into SQL with the same semantics as
// query.Filter.Match.
func buildWhere(f query.Filter) *whereBuilder {
	w := &whereBuilder{}
	if isSet(f.Region) {
		want := strings.TrimSpace(f.Region)
		if r, ok := model.LookupRegion(want); ok {
			want = r.Name
		}
		p := w.arg(strings.ToLower(want))
		w.add(fmt.Sprintf("(lower(region) = %s OR lower(region_code) = %s)", p, p))
	}
	if s := strings.TrimSpace(f.Subregion); s != "" {
		w.add(fmt.Sprintf("strpos(lower(subregion), %s) > 0", w.arg(strings.ToLower(s))))
	}
	if isSet(f.EventType) {
		w.add("event_type = " + w.arg(strings.ToUpper(strings.TrimSpace(f.EventType))))
	}
	if isSet(f.ReasonCategory) {
		w.add("reason_category = " + w.arg(strings.ToUpper(strings.TrimSpace(f.ReasonCategory))))
	}
	if isSet(f.Source) && !strings.EqualFold(strings.TrimSpace(f.Source), string(model.SourcePrimaryStore)) {
		w.add("FALSE")
	}
	if f.Verified != nil {
		w.add("verified = " + w.arg(*f.Verified))
	}
	if f.From != nil {
		w.add("start_time >= " + w.arg(f.From.UTC()))
	}
	if f.To != nil {
		w.add("start_time <= " + w.arg(f.To.UTC()))
	}
	if tokens := f.SearchTokens(); len(tokens) > 0 {
		ors := make([]string, 0, len(tokens))
		for _, t := range tokens {
			ors = append(ors, fmt.Sprintf("strpos(lower(region || ' ' || subregion || ' ' || reason), %s) > 0", w.arg(t)))
		}
		w.add("(" + strings.Join(ors, " OR ") + ")")
	}
	return w
}

// Text columns use the C collation so ordering is bytewise, the same as
// query.SortEvents.
var sortColumns = map[string]string{
	query.FieldStartTime:      "start_time",
	query.FieldEndTime:        "end_time",
	query.FieldDuration:       "duration_hours",
	query.FieldRegion:         `region COLLATE "C"`,
	query.FieldSubregion:      `subregion COLLATE "C"`,
	query.FieldEventType:      "event_type",
	query.FieldReasonCategory: "reason_category",
	query.FieldSource:         "'PRIMARY_STORE'",
	query.FieldVerified:       "verified",
	query.FieldID:             "id",
}

// orderBy renders a whitelisted ORDER BY. Nulls sort as the smallest value.
func orderBy(s query.Sort) string {
	col, ok := sortColumns[s.Field]
	if !ok {
		col = "start_time"
	}
	if col == "id" {
		if s.Desc {
			return ` ORDER BY id COLLATE "C" DESC`
		}
		return ` ORDER BY id COLLATE "C" ASC`
	}
	dir := "ASC NULLS FIRST"
	if s.Desc {
		dir = "DESC NULLS LAST"
	}
	return fmt.Sprintf(` ORDER BY %s %s, id COLLATE "C" ASC`, col, dir)
}
