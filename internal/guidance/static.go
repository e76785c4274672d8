package guidance

import (
	"context"
	"fmt"
	"hash/fnv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

var staticPhrases = []string{
	"Move at your own pace today and let small wins add up.",
	"A conversation you have been postponing is worth having now.",
	"Give attention to what restores your energy before taking on more.",
	"Trust the plan you already made and adjust only the details.",
	"Curiosity opens a door that effort alone would not.",
	"Let go of one obligation that no longer fits who you are becoming.",
	"Patience with others starts with patience with yourself.",
}

// StaticWriter produces deterministic text without calling a model. It backs
// development environments and is the fallback for model failures.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) Write(ctx context.Context, req WriteRequest) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tag, err := language.Parse(req.Locale)
	if err != nil {
		tag = language.English
	}
	heading := cases.Title(tag)
	seed := phraseSeed(req.OwnerID, req.DateKey, string(req.Spec.Kind))

	doc := &Document{
		Title:    fmt.Sprintf("%s · %s", req.Spec.LocalizedTitle(req.Locale), req.DateKey),
		Metadata: map[string]string{"locale": req.Locale},
		Provider: staticProviderName,
	}
	for i, name := range req.Spec.Sections {
		doc.Sections = append(doc.Sections, Section{
			Heading: heading.String(name),
			Body:    staticPhrases[(seed+uint32(i))%uint32(len(staticPhrases))],
		})
	}
	return doc, nil
}

func phraseSeed(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum32()
}

var _ Writer = (*StaticWriter)(nil)
