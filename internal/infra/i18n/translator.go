package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var LocalesFS embed.FS

// DefaultLanguage is used when the caller asks for nothing we ship.
const DefaultLanguage = "en"

type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator reads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T returns the message for key, formatted with args. Unknown keys come back unchanged.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Has reports whether key is translated.
func (t *Translator) Has(key string) bool {
	_, ok := t.translations[key]
	return ok
}

// Catalog holds one translator per shipped language.
type Catalog struct {
	langs map[string]*Translator
}

// LoadCatalog loads every locale file found in fsys.
func LoadCatalog(fsys fs.FS) (*Catalog, error) {
	files, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, err
	}
	c := &Catalog{langs: make(map[string]*Translator, len(files))}
	for _, f := range files {
		lang := strings.TrimSuffix(path.Base(f), ".yaml")
		t, err := NewTranslator(fsys, lang)
		if err != nil {
			return nil, err
		}
		c.langs[lang] = t
	}
	if _, ok := c.langs[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("locale %q is required", DefaultLanguage)
	}
	return c, nil
}

// MustLoadEmbedded loads the locales compiled into the binary.
func MustLoadEmbedded() *Catalog {
	c, err := LoadCatalog(LocalesFS)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup picks the first supported language from an Accept-Language value.
// Quality weights are ignored; order decides.
func (c *Catalog) Lookup(acceptLanguage string) *Translator {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if t, ok := c.langs[base]; ok {
			return t
		}
	}
	return c.langs[DefaultLanguage]
}
