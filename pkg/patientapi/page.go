package patientapi

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
)

// DecodePage parses a patients response body. A body that is not JSON at all
// yields a plain decode error; a JSON body without an array "data" field or
// without a boolean "pagination.hasNext" yields *SchemaError. The whole page
// is rejected in either case.
func DecodePage(body []byte) (*model.Page, error) {
	if !json.Valid(body) {
		return nil, eris.New("patientapi: decode page: body is not valid JSON")
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil || env == nil {
		return nil, &SchemaError{Reason: "body is not an object"}
	}

	data := bytes.TrimSpace(env["data"])
	if len(data) == 0 || data[0] != '[' {
		return nil, &SchemaError{Reason: "data is not an array"}
	}

	var pagination map[string]json.RawMessage
	if err := json.Unmarshal(env["pagination"], &pagination); err != nil || pagination == nil {
		return nil, &SchemaError{Reason: "pagination is not an object"}
	}

	var page model.Page
	switch string(bytes.TrimSpace(pagination["hasNext"])) {
	case "true":
		page.Pagination.HasNext = true
	case "false":
		page.Pagination.HasNext = false
	default:
		return nil, &SchemaError{Reason: "pagination.hasNext is not a boolean"}
	}
	if n, err := strconv.Atoi(string(bytes.TrimSpace(pagination["page"]))); err == nil {
		page.Pagination.Page = n
	}

	if err := json.Unmarshal(data, &page.Records); err != nil {
		return nil, eris.Wrap(err, "patientapi: decode records")
	}
	if page.Records == nil {
		page.Records = []model.PatientRecord{}
	}

	return &page, nil
}
