package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"Go", []string{"Go"}},
		{"Go, Gin ,SQL", []string{"Go", "Gin", "SQL"}},
		{"Go,,  ,Docker", []string{"Go", "Docker"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}

func TestProjectTechnologyList(t *testing.T) {
	p := Project{Technologies: "Python, Flask, SQLite"}
	assert.Equal(t, []string{"Python", "Flask", "SQLite"}, p.TechnologyList())
}

func TestPostTagList(t *testing.T) {
	p := Post{Tags: "web,  backend"}
	assert.Equal(t, []string{"web", "backend"}, p.TagList())
}
