package domain

import "time"

// MaxImageSize is the largest fridge photo accepted for generation (5 MiB).
const MaxImageSize = 5 * 1024 * 1024

// Generation status values carried in the "status" field of an event payload.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// GeneratedRecipe is one recipe candidate produced by the generator. It is not
// persisted until promoted through the recipe backend.
type GeneratedRecipe struct {
	Title       string   `json:"title"`
	Duration    int      `json:"duration"`
	Ingredients []string `json:"ingredients"`
	Tools       []string `json:"tools"`
	Steps       []string `json:"steps"`
	ImageURL    string   `json:"imageUrl"`
}

type EventKind int

const (
	EventSuccess EventKind = iota + 1
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// GenerationEvent is a terminal result of a generation session: either the
// generated recipes or an error message. Err holds the classified cause of an
// error event and is nil for success.
type GenerationEvent struct {
	Kind    EventKind
	Recipes []GeneratedRecipe
	Message string
	Err     error
}

func SuccessEvent(recipes []GeneratedRecipe) GenerationEvent {
	return GenerationEvent{Kind: EventSuccess, Recipes: recipes}
}

func ErrorEvent(err error, message string) GenerationEvent {
	return GenerationEvent{Kind: EventError, Message: message, Err: err}
}

// EventPayload is the JSON body of a "data:" line on the events stream.
type EventPayload struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Recipes []GeneratedRecipe `json:"recipes,omitempty"`
}

// RecipeInput is the create-recipe request body.
type RecipeInput struct {
	Title       string   `json:"title"`
	Duration    int      `json:"duration"`
	Ingredients []string `json:"ingredients"`
	Tools       []string `json:"tools"`
	Steps       []string `json:"steps"`
	ImageURL    string   `json:"imageUrl"`
}

// Recipe is a persisted recipe as returned by the recipe backend.
type Recipe struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Duration    int       `json:"duration"`
	Ingredients []string  `json:"ingredients"`
	Tools       []string  `json:"tools"`
	Steps       []string  `json:"steps"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Generation is the backend's log entry for one generation request.
type Generation struct {
	ID          int64
	SessionKey  string
	Status      string
	Message     string
	RecipeCount int
	CreatedAt   time.Time
	FinishedAt  *time.Time
}
