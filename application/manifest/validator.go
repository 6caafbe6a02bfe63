// Package manifest validates library manifests and derives them from a
// registry of exports.
package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// cKeywords cannot be used as function or parameter names in the header.
var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extern": true, "float": true, "for": true, "goto": true,
	"if": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "return": true, "short": true, "signed": true,
	"sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "unsigned": true, "void": true,
	"volatile": true, "while": true, "bool": true, "true": true, "false": true,
	"delete": true, "new": true, "namespace": true, "template": true,
}

// IsCIdentifier reports whether s is usable as a C identifier.
func IsCIdentifier(s string) bool {
	return identPattern.MatchString(s) && !cKeywords[s]
}

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("c_ident", func(fl validator.FieldLevel) bool {
		return IsCIdentifier(fl.Field().String())
	})
	return v
}

// Validator implements ports.ManifestValidator with go-playground/validator
// struct rules plus the cross-field checks tags cannot express.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator. The validator instance is reused across
// calls; creating one is expensive.
func NewValidator() *Validator {
	return &Validator{validate: newValidate()}
}

// Validate returns every problem found, joined. Each is an
// *errors.ValidationError naming the offending field.
func (v *Validator) Validate(m *entities.LibraryManifest) error {
	if m == nil {
		return &abierrors.ValidationError{Err: errors.New("manifest is nil")}
	}

	var errs []error
	if err := v.validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, &abierrors.ValidationError{Field: fieldPath(fe), Err: describe(fe)})
		}
	}

	if m.Namespace != "" {
		for _, part := range strings.Split(m.Namespace, ".") {
			if !identPattern.MatchString(part) {
				errs = append(errs, &abierrors.ValidationError{
					Field: "namespace",
					Err:   fmt.Errorf("%q is not a dotted identifier", m.Namespace),
				})
				break
			}
		}
	}

	seen := make(map[string]bool, len(m.Exports))
	for i, d := range m.Exports {
		field := fmt.Sprintf("exports[%d]", i)
		if d.Name != "" && seen[d.Name] {
			errs = append(errs, &abierrors.ValidationError{Field: field + ".name", Err: fmt.Errorf("duplicate export %q", d.Name)})
		}
		seen[d.Name] = true

		if !d.Returns.Valid() {
			errs = append(errs, &abierrors.ValidationError{Field: field + ".returns", Err: fmt.Errorf("invalid kind %s", d.Returns)})
		}
		if len(d.Schema) > 0 && d.Returns != entities.KindText {
			errs = append(errs, &abierrors.ValidationError{Field: field + ".schema", Err: fmt.Errorf("schema given for %s result", d.Returns)})
		}
		if want, ok := builtinSignatures[d.Name]; ok && d.Signature() != want {
			errs = append(errs, &abierrors.ValidationError{
				Field: field,
				Err:   fmt.Errorf("%q is reserved for %s", d.Name, want),
			})
		}

		params := make(map[string]bool, len(d.Params))
		for j, p := range d.Params {
			if params[p.Name] {
				errs = append(errs, &abierrors.ValidationError{
					Field: fmt.Sprintf("%s.params[%d].name", field, j),
					Err:   fmt.Errorf("duplicate parameter %q", p.Name),
				})
			}
			params[p.Name] = true
		}
	}

	return errors.Join(errs...)
}

// builtinSignatures are the only declarations allowed under reserved names.
var builtinSignatures = map[string]string{
	"alloc":   "alloc(size size) -> ptr",
	"dealloc": "dealloc(ptr block) -> void",
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return errors.New("is required")
	case "c_ident":
		return fmt.Errorf("%q is not a valid C identifier", fe.Value())
	case "oneof":
		return fmt.Errorf("%v is not one of [%s]", fe.Value(), fe.Param())
	default:
		return fmt.Errorf("failed %q check", fe.Tag())
	}
}

var _ ports.ManifestValidator = (*Validator)(nil)
