package workspace

import (
	"embed"
	"fmt"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/translate"
)

//go:embed templates/*
var builtinFS embed.FS

// BuiltinTemplate returns the shipped template for language and format.
// Regional languages fall back to their short form.
func BuiltinTemplate(language string, format models.Format) (string, error) {
	for _, lang := range []string{language, ShortLanguage(language)} {
		data, err := builtinFS.ReadFile(fmt.Sprintf("templates/template.%s.%s", lang, format))
		if err == nil {
			return string(data), nil
		}
	}
	return "", fmt.Errorf("workspace: no built-in %s template for language %q: %w", format, language, apperr.ErrInvalidArgument)
}

// BuiltinTemplateOrDefault is BuiltinTemplate falling back to English, then
// to the English markdown template.
func BuiltinTemplateOrDefault(language string, format models.Format) string {
	if t, err := BuiltinTemplate(language, format); err == nil {
		return t
	}
	if t, err := BuiltinTemplate(DefaultLanguage, format); err == nil {
		return t
	}
	t, _ := BuiltinTemplate(DefaultLanguage, models.FormatMarkdown)
	return t
}

// BuiltinTranslations returns the shipped phrase table for language, or an
// empty table for English and unknown languages.
func BuiltinTranslations(language string) translate.Table {
	if data, ok := builtinTranslationFile(language); ok {
		return ParseTranslations(data)
	}
	return translate.Table{}
}

func builtinTranslationFile(language string) ([]byte, bool) {
	for _, lang := range []string{language, ShortLanguage(language)} {
		if data, err := builtinFS.ReadFile("templates/template." + lang + ".ref"); err == nil {
			return data, true
		}
	}
	return nil, false
}
