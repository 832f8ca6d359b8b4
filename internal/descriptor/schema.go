package descriptor

import (
	"bytes"
	"encoding/json"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
	schemareflector "github.com/swaggest/jsonschema-go"
)

var documentSchema *jsonschema.Schema

func init() {
	bs, err := ReflectSchema()
	if err != nil {
		panic(err)
	}
	js, err := jsonschema.UnmarshalJSON(bytes.NewReader(bs))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource("descriptor.json", js); err != nil {
		panic(err)
	}

	documentSchema, err = compiler.Compile("descriptor.json")
	if err != nil {
		panic(err)
	}
}

// ReflectSchema returns the JSON schema of the descriptor document.
func ReflectSchema() ([]byte, error) {
	reflector := schemareflector.Reflector{}

	s, err := reflector.Reflect(Document{}, schemareflector.InlineRefs)
	if err != nil {
		return nil, err
	}
	s.WithTitle("reposync repository descriptor document")

	return json.MarshalIndent(s, "", "  ")
}

// Validate checks a YAML or JSON document against the descriptor schema.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}

	return documentSchema.Validate(doc)
}
