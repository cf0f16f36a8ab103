package forms

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sl-c19-memorial/memorial-web/internal/platform/config"
)

// ResponseMode selects how a pipeline reports its outcome.
type ResponseMode string

const (
	// ResponseRedirect answers 303 to the referring page with success/requestId query flags.
	ResponseRedirect ResponseMode = "redirect"
	// ResponseJSON answers 200/400 with {success, sessionId, error}.
	ResponseJSON ResponseMode = "json"
)

// ReplyTo names the fields carrying the submitter's identity.
type ReplyTo struct {
	EmailField string `yaml:"email_field" validate:"required"`
	NameField  string `yaml:"name_field"`
}

// Definition parameterises one intake pipeline.
type Definition struct {
	Name          string       `yaml:"name" validate:"required,alphanum,lowercase"`
	TemplateKey   string       `yaml:"template_key" validate:"required"`
	Recipients    []string     `yaml:"recipients" validate:"required,min=1,dive,email"`
	ReplyTo       ReplyTo      `yaml:"reply_to"`
	Captcha       bool         `yaml:"captcha"`
	Response      ResponseMode `yaml:"response" validate:"required,oneof=redirect json"`
	Attachments   bool         `yaml:"attachments"`
	Checkboxes    []string     `yaml:"checkboxes" validate:"dive,required"`
	HTMLBodyTitle string       `yaml:"html_body_title"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a definition's fields.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("forms: invalid definition %q: %s", d.Name, strings.Join(fields, ", "))
		}
		return fmt.Errorf("forms: invalid definition %q: %w", d.Name, err)
	}
	return nil
}

// DefaultDefinitions returns the contact and submission forms wired from configuration.
func DefaultDefinitions(cfg config.FormsConfig) []Definition {
	return []Definition{
		{
			Name:          "contact",
			TemplateKey:   cfg.ContactTemplateKey,
			Recipients:    append([]string(nil), cfg.ContactRecipients...),
			ReplyTo:       ReplyTo{EmailField: "email", NameField: "name"},
			Response:      ResponseRedirect,
			HTMLBodyTitle: "Contact Us Form ID",
		},
		{
			Name:        "submission",
			TemplateKey: cfg.SubmissionTemplateKey,
			Recipients:  []string{cfg.SubmissionRecipient},
			ReplyTo:     ReplyTo{EmailField: "submitterEmail", NameField: "submitterName"},
			Captcha:     true,
			Response:    ResponseJSON,
			Attachments: true,
			Checkboxes:  []string{"displayName"},
		},
	}
}

type definitionsFile struct {
	Forms []Definition `yaml:"forms"`
}

// LoadDefinitions reads form definitions from a YAML file of the form {forms: [...]}.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forms: read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes and validates a definitions document.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var doc definitionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("forms: decode definitions: %w", err)
	}
	if len(doc.Forms) == 0 {
		return nil, errors.New("forms: definitions file declares no forms")
	}
	seen := make(map[string]struct{}, len(doc.Forms))
	for _, def := range doc.Forms {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("forms: duplicate definition %q", def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return doc.Forms, nil
}
