// Package validation checks inbound websocket payloads before any handler runs.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://gema.local/chat/events/"

// ErrUnknownEvent is returned for events that have no registered schema.
var ErrUnknownEvent = errors.New("unknown event")

// Error lists every constraint a payload violated.
type Error struct {
	Event  string
	Errors []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Event, strings.Join(e.Errors, "; "))
}

// Validator decodes event payloads. A payload must satisfy the event's JSON
// schema and the struct tags of the target type.
type Validator struct {
	validate *validator.Validate
	schemas  map[string]*jsonschema.Schema
}

// New compiles the schema of every known event. A nil validate gets a default instance.
func New(validate *validator.Validate) (*Validator, error) {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	validate.RegisterTagNameFunc(jsonFieldName)

	compiler := jsonschema.NewCompiler()
	for event, schema := range eventSchemas {
		if err := compiler.AddResource(schemaBaseURL+event+".json", strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("failed to load schema for %s: %w", event, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(eventSchemas))
	for event := range eventSchemas {
		schema, err := compiler.Compile(schemaBaseURL + event + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", event, err)
		}
		schemas[event] = schema
	}

	return &Validator{validate: validate, schemas: schemas}, nil
}

// Known reports whether the event has a schema.
func (v *Validator) Known(event string) bool {
	_, ok := v.schemas[event]
	return ok
}

// Decode validates raw against the event schema, unmarshals it into target and
// runs struct validation. Violations are returned as *Error.
func (v *Validator) Decode(event string, raw json.RawMessage, target interface{}) error {
	schema, ok := v.schemas[event]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return &Error{Event: event, Errors: []string{"payload is not valid JSON"}}
	}

	if err := schema.Validate(document); err != nil {
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			return &Error{Event: event, Errors: FlattenSchemaError(schemaErr)}
		}
		return &Error{Event: event, Errors: []string{err.Error()}}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return &Error{Event: event, Errors: []string{err.Error()}}
	}

	if err := v.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return &Error{Event: event, Errors: FlattenFieldErrors(fieldErrs)}
		}
		return err
	}

	return nil
}

// FlattenSchemaError walks the cause tree and renders each leaf as
// "path: message". Duplicates are removed and the output is sorted.
func FlattenSchemaError(err *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			seen[formatViolation(pointerToPath(node.InstanceLocation), node.Message)] = struct{}{}
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)

	out := make([]string, 0, len(seen))
	for message := range seen {
		out = append(out, message)
	}
	sort.Strings(out)
	return out
}

// FlattenFieldErrors renders struct tag failures using JSON field paths.
func FlattenFieldErrors(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		out = append(out, describeFieldError(fieldErr))
	}
	return out
}

func describeFieldError(fieldErr validator.FieldError) string {
	path := fieldErr.Namespace()
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		path = path[idx+1:]
	}

	switch fieldErr.Tag() {
	case "required":
		return formatViolation(path, "should not be empty")
	case "max":
		if isNumberKind(fieldErr.Kind()) {
			return formatViolation(path, fmt.Sprintf("must not be greater than %s", fieldErr.Param()))
		}
		return formatViolation(path, fmt.Sprintf("must be shorter than or equal to %s characters", fieldErr.Param()))
	case "min":
		if isNumberKind(fieldErr.Kind()) {
			return formatViolation(path, fmt.Sprintf("must not be less than %s", fieldErr.Param()))
		}
		return formatViolation(path, fmt.Sprintf("must be longer than or equal to %s characters", fieldErr.Param()))
	case "numeric":
		return formatViolation(path, "must be a number string")
	default:
		return formatViolation(path, fmt.Sprintf("failed on the '%s' rule", fieldErr.Tag()))
	}
}

func isNumberKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func formatViolation(path, message string) string {
	if path == "" {
		return message
	}
	return path + ": " + message
}

// pointerToPath converts a JSON pointer such as /message/attachments/0/URL to
// message.attachments.0.URL.
func pointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	parts := strings.Split(pointer, "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return strings.Join(parts, ".")
}

// jsonFieldName names a field the way clients send it: its json tag, else its
// query tag for REST query structs, else the Go name.
func jsonFieldName(field reflect.StructField) string {
	for _, key := range []string{"json", "query"} {
		name := strings.SplitN(field.Tag.Get(key), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return field.Name
}
