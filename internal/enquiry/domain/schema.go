// Package domain holds the enquiry form schema, submissions and field errors shared by the
// cache, validator, pipeline and HTTP handlers.
package domain

import "time"

// FieldType is the kind of a form field as defined by the upstream CRM.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEnum     FieldType = "enum"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
)

// AttributesPrefix marks fields whose values live in the submission's "attributes" object.
const AttributesPrefix = "attributes"

// FieldDefinition defines one form field.
type FieldDefinition struct {
	Field      string    `json:"field"`
	Label      string    `json:"label"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	MaxLength  *int      `json:"max_length,omitempty"`
	EnumValues []string  `json:"enum_values,omitempty"`
	Prefix     string    `json:"prefix,omitempty"`
}

// IsAttribute reports whether the field is read from the submission's attributes object.
func (f FieldDefinition) IsAttribute() bool {
	return f.Prefix == AttributesPrefix
}

// Schema is the set of fields a company's CRM currently expects. It is never modified after it is fetched.
type Schema struct {
	CompanyID string            `json:"company_id"`
	Count     int               `json:"count"`
	Visible   []FieldDefinition `json:"visible"`
	FetchedAt time.Time         `json:"fetched_at"`
}
