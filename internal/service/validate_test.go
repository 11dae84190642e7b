package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/MimeLyc/jobhunt-companion/internal/session"
)

func TestNormalizeInputs(t *testing.T) {
	got := NormalizeInputs(session.Inputs{
		JDText:       "  Café barista\r\nwanted  ",
		ResumeText:   "\tcv\n",
		ProjectsText: "   ",
	})
	assert.Equal(t, "Café barista\nwanted", got.JDText)
	assert.Equal(t, "cv", got.ResumeText)
	assert.Empty(t, got.ProjectsText)
}

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name    string
		in      session.Inputs
		wantErr string
	}{
		{"both present", session.Inputs{JDText: "jd", ResumeText: "cv"}, ""},
		{"missing jd", session.Inputs{ResumeText: "cv"}, "job description"},
		{"missing resume", session.Inputs{JDText: "jd"}, "résumé"},
		{"missing both", session.Inputs{}, "job description and résumé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputs(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsErrorType(err, ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLanguageWarnings(t *testing.T) {
	english := "We are looking for an experienced backend engineer who enjoys building reliable distributed systems and mentoring the people around them."
	french := "Je suis une ingénieure logicielle passionnée avec dix ans d'expérience dans la conception de systèmes distribués et la gestion d'équipes."

	assert.Equal(t, language.English, DetectLanguage(english))
	assert.Equal(t, language.Und, DetectLanguage("too short"))

	assert.Empty(t, LanguageWarnings(session.Inputs{JDText: english, ResumeText: english}))
	warnings := LanguageWarnings(session.Inputs{JDText: english, ResumeText: french})
	if assert.Len(t, warnings, 1) {
		assert.Contains(t, warnings[0], "en")
		assert.Contains(t, warnings[0], "fr")
	}
}
