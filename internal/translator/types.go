package translator

import "context"

// BookMeta is bibliographic context handed to the backend so names and
// tone stay consistent across a book.
type BookMeta struct {
	Title   string
	Creator string
}

// Request is one translation unit sent to the backend.
type Request struct {
	Text       string
	Context    string
	SourceLang string
	TargetLang string
	Meta       BookMeta
}

// Translator turns one source text into the target language.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}
