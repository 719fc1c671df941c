// Package vision turns a fridge photo into recipe candidates using a
// multimodal model.
package vision

import (
	"context"
	"io"

	"github.com/brokechef/fridgechef/internal/domain"
)

// RecipePrompt is the shared prompt used by all vision adapters.
const RecipePrompt = `Look at this photo of a refrigerator, freezer or pantry and identify the food you can see.
Suggest up to three recipes that can be cooked mostly from those ingredients.
Respond with JSON only, no prose, in exactly this shape:
{"recipes":[{"title":"...","duration":25,"ingredients":["..."],"tools":["..."],"steps":["..."]}]}
duration is the total cooking time in whole minutes.`

type RecipeGenerator interface {
	GenerateRecipes(ctx context.Context, r io.Reader, mimeType string) (*Result, error)
}

type Result struct {
	Recipes     []domain.GeneratedRecipe
	RawResponse string
}
