package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// amount accepts a JSON number or a plain decimal string with at most two
// decimal places.
const amountSchema = `{"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]{1,2})?$"}`

var (
	counselSchema = mustSchema(`{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"cell_phone": {"type": "string"},
			"email": {"type": "string"},
			"memo": {"type": "string"},
			"address": {"type": "string"},
			"address_detail": {"type": "string"},
			"zip_code": {"type": "string"}
		}
	}`)

	applicationSchema = mustSchema(`{
		"type": "object",
		"required": ["name", "requested_amount"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"cell_phone": {"type": "string"},
			"email": {"type": "string"},
			"requested_amount": ` + amountSchema + `
		}
	}`)

	acceptTermsSchema = mustSchema(`{
		"type": "object",
		"required": ["accept_terms_ids"],
		"properties": {
			"accept_terms_ids": {"type": "array", "items": {"type": "integer"}}
		}
	}`)

	termsSchema = mustSchema(`{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"terms_detail_url": {"type": "string"}
		}
	}`)

	judgmentSchema = mustSchema(`{
		"type": "object",
		"required": ["application_id", "approval_amount"],
		"properties": {
			"application_id": {"type": "integer", "minimum": 1},
			"name": {"type": "string"},
			"approval_amount": ` + amountSchema + `
		}
	}`)

	judgmentUpdateSchema = mustSchema(`{
		"type": "object",
		"required": ["approval_amount"],
		"properties": {
			"name": {"type": "string"},
			"approval_amount": ` + amountSchema + `
		}
	}`)

	entrySchema = mustSchema(`{
		"type": "object",
		"required": ["entry_amount"],
		"properties": {
			"entry_amount": ` + amountSchema + `
		}
	}`)

	repaymentSchema = mustSchema(`{
		"type": "object",
		"required": ["type", "repayment_amount"],
		"properties": {
			"type": {"type": "string", "enum": ["ADD", "REMOVE"]},
			"repayment_amount": ` + amountSchema + `
		}
	}`)

	scenarioSchema = mustSchema(`{
		"type": "object",
		"required": ["scenario_id"],
		"properties": {
			"scenario_id": {"type": "string", "minLength": 1}
		}
	}`)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}

// requestError lists every schema violation in a body.
type requestError struct {
	msg    string
	fields []string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON validates the body against schema, then decodes it into dst.
func decodeJSON(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &requestError{msg: "failed to read request body"}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &requestError{msg: "request body is not valid JSON", fields: []string{err.Error()}}
	}
	if !result.Valid() {
		fields := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			fields = append(fields, e.String())
		}
		return &requestError{msg: "request body failed validation", fields: fields}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &requestError{msg: "invalid request body", fields: []string{err.Error()}}
	}
	return nil
}
