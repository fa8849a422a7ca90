package database

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// versionField is maintained on every document written through a transaction.
const versionField = "_version"

// RecordIDString extracts the id part of a SurrealDB record id ("account:abc" -> "abc").
func RecordIDString(id interface{}) string {
	switch v := id.(type) {
	case string:
		if i := strings.Index(v, ":"); i >= 0 {
			return strings.Trim(v[i+1:], "⟨⟩`")
		}
		return v
	case models.RecordID:
		return idPart(v.ID)
	case *models.RecordID:
		if v != nil {
			return idPart(v.ID)
		}
	case map[string]interface{}:
		// Handle {"tb": "table", "id": "xxx"} format
		if inner, ok := v["id"]; ok {
			return idPart(inner)
		}
	}

	// Try JSON marshaling as fallback
	if data, err := json.Marshal(id); err == nil {
		var recordID models.RecordID
		if err := json.Unmarshal(data, &recordID); err == nil {
			return idPart(recordID.ID)
		}
	}

	return ""
}

func idPart(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		data, err := json.Marshal(id)
		if err != nil {
			return ""
		}
		return strings.Trim(string(data), `"`)
	}
}

// Time parses time from the representations a store may return.
func Time(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case models.CustomDateTime:
		return t.Time
	case *models.CustomDateTime:
		if t != nil {
			return t.Time
		}
	}
	return time.Time{}
}

// Int converts the numeric types a store may return to int64.
func Int(v interface{}) int64 {
	switch c := v.(type) {
	case int:
		return int64(c)
	case int32:
		return int64(c)
	case int64:
		return c
	case uint:
		return int64(c)
	case uint32:
		return int64(c)
	case uint64:
		return int64(c)
	case float32:
		return int64(c)
	case float64:
		return int64(c)
	case json.Number:
		n, _ := c.Int64()
		return n
	}
	return 0
}

// Strings converts a decoded array to []string, dropping non-string entries.
func Strings(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		return append([]string{}, arr...)
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// decodeDocument normalizes a raw SurrealDB row into a Document: the record
// id becomes its bare id string and datetimes become time.Time.
func decodeDocument(raw interface{}) (Document, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	doc := make(Document, len(m))
	for k, v := range m {
		switch k {
		case "id":
			doc[k] = RecordIDString(v)
		default:
			switch tv := v.(type) {
			case models.CustomDateTime, *models.CustomDateTime:
				doc[k] = Time(tv)
			default:
				doc[k] = v
			}
		}
	}
	return doc, true
}

// rows extracts the result rows of one statement of a Query response.
func rows(results []interface{}, index int) []interface{} {
	if index >= len(results) {
		return nil
	}
	resp, ok := results[index].(map[string]interface{})
	if !ok {
		return nil
	}
	switch r := resp["result"].(type) {
	case []interface{}:
		return r
	case nil:
		return nil
	default:
		return []interface{}{r}
	}
}
