package service

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/MimeLyc/jobhunt-companion/internal/session"
)

// minDetectRunes is the shortest text whose language is worth guessing.
const minDetectRunes = 40

// NormalizeInputs trims the texts and brings them to NFC so pasted text from
// different sources compares and renders the same.
func NormalizeInputs(in session.Inputs) session.Inputs {
	return session.Inputs{
		JDText:       normalizeText(in.JDText),
		ResumeText:   normalizeText(in.ResumeText),
		ProjectsText: normalizeText(in.ProjectsText),
	}
}

func normalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// ValidateInputs rejects a submission without the required texts.
func ValidateInputs(in session.Inputs) error {
	var missing []string
	if in.JDText == "" {
		missing = append(missing, "job description")
	}
	if in.ResumeText == "" {
		missing = append(missing, "résumé")
	}
	if len(missing) == 0 {
		return nil
	}
	return NewError(ErrValidation, fmt.Sprintf("Please provide the %s", strings.Join(missing, " and "))).
		WithContext("missing", strings.Join(missing, ","))
}

// DetectLanguage guesses the language of s, returning language.Und when the
// text is too short or the guess is unreliable.
func DetectLanguage(s string) language.Tag {
	if len([]rune(s)) < minDetectRunes {
		return language.Und
	}
	info := whatlanggo.Detect(s)
	if !info.IsReliable() {
		return language.Und
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return language.Und
	}
	return tag
}

// LanguageWarnings flags inputs that seem to be written in different languages.
func LanguageWarnings(in session.Inputs) []string {
	jd := DetectLanguage(in.JDText)
	resume := DetectLanguage(in.ResumeText)
	if jd == language.Und || resume == language.Und || jd == resume {
		return nil
	}
	return []string{fmt.Sprintf(
		"The job description looks like %s but the résumé looks like %s; results may be less accurate",
		jd, resume,
	)}
}
