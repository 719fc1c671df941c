package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brokechef/fridgechef/internal/domain"
)

var ErrNoRecipes = errors.New("model returned no recipes")

// ParseRecipes extracts recipes from a model response. The JSON may be wrapped
// in a markdown code fence or surrounded by prose, and may be either an object
// with a "recipes" array or a bare array. Recipes without a title are dropped.
func ParseRecipes(raw string) ([]domain.GeneratedRecipe, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON in response", ErrNoRecipes)
	}

	var recipes []domain.GeneratedRecipe
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &recipes); err != nil {
			return nil, fmt.Errorf("failed to decode recipes: %w", err)
		}
	} else {
		var wrapper struct {
			Recipes []domain.GeneratedRecipe `json:"recipes"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode recipes: %w", err)
		}
		recipes = wrapper.Recipes
	}

	out := make([]domain.GeneratedRecipe, 0, len(recipes))
	for _, r := range recipes {
		r.Title = strings.TrimSpace(r.Title)
		if r.Title == "" {
			continue
		}
		r.Ingredients = nonEmpty(r.Ingredients)
		r.Tools = nonEmpty(r.Tools)
		r.Steps = nonEmpty(r.Steps)
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipes
	}
	return out, nil
}

// extractJSON returns the outermost JSON object or array in s, or "".
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
