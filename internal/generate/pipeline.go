package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xiyo/replica-builder/internal/logger"
)

// DocInfo identifies one page of the planned site
type DocInfo struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Category groups related pages
type Category struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Docs  []DocInfo `json:"docs"`
}

// IndexInfo describes the site's landing page
type IndexInfo struct {
	Title       string `json:"title"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
}

// SiteStructure is the planned shape of a documentation site
type SiteStructure struct {
	Topic      string     `json:"topic"`
	Categories []Category `json:"categories"`
	Index      IndexInfo  `json:"index"`
}

// HeroAction is one call-to-action button on the landing page
type HeroAction struct {
	Text string `json:"text"`
	Link string `json:"link"`
	Icon string `json:"icon"`
}

// Hero is the landing page hero block
type Hero struct {
	Tagline string       `json:"tagline"`
	Actions []HeroAction `json:"actions"`
}

// Frontmatter is a page's metadata header
type Frontmatter struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Template    string `json:"template,omitempty"`
	Hero        *Hero  `json:"hero,omitempty"`
}

// DocContent is one generated page
type DocContent struct {
	Frontmatter Frontmatter `json:"frontmatter"`
	Content     string      `json:"content"`
}

// Pipeline produces a complete documentation tree for a topic
type Pipeline struct {
	client *GeminiClient
	outDir string
	log    *logger.Logger
}

// NewPipeline creates a pipeline writing under outDir
func NewPipeline(client *GeminiClient, outDir string) *Pipeline {
	return &Pipeline{
		client: client,
		outDir: outDir,
		log:    logger.WithField("component", "generate"),
	}
}

// Run generates the site structure and every page for a topic, writing
// markdown files under the output directory. Pages are generated one at a
// time; a single failed page fails the whole run since a partial site is
// not deployable.
func (p *Pipeline) Run(ctx context.Context, topic string) error {
	p.log.WithField("topic", topic).Info("Generating site structure")

	var structure SiteStructure
	if err := p.client.GenerateJSON(ctx, structurePrompt(topic), &structure); err != nil {
		return fmt.Errorf("failed to generate site structure: %w", err)
	}
	if len(structure.Categories) == 0 {
		return fmt.Errorf("generated structure has no categories")
	}

	index, err := p.generateIndex(ctx, &structure)
	if err != nil {
		return err
	}
	if err := p.write("index.md", index); err != nil {
		return err
	}

	for _, category := range structure.Categories {
		for _, doc := range category.Docs {
			p.log.WithFields(map[string]interface{}{
				"category": category.Name,
				"slug":     doc.Slug,
			}).Info("Generating page")

			var content DocContent
			if err := p.client.GenerateJSON(ctx, docPrompt(topic, category, doc), &content); err != nil {
				return fmt.Errorf("failed to generate %s/%s: %w", category.Name, doc.Slug, err)
			}

			path := filepath.Join(category.Name, doc.Slug+".md")
			if err := p.write(path, toMarkdown(&content)); err != nil {
				return err
			}
		}
	}

	p.log.Info("Site generation complete")
	return nil
}

// generateIndex produces the landing page from the planned structure
func (p *Pipeline) generateIndex(ctx context.Context, structure *SiteStructure) (string, error) {
	var content DocContent
	if err := p.client.GenerateJSON(ctx, indexPrompt(structure), &content); err != nil {
		return "", fmt.Errorf("failed to generate index page: %w", err)
	}
	return toMarkdown(&content), nil
}

// write stores one markdown file relative to the output directory
func (p *Pipeline) write(relPath, content string) error {
	path := filepath.Join(p.outDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// toMarkdown renders a generated page as frontmatter plus body
func toMarkdown(doc *DocContent) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", doc.Frontmatter.Title)
	fmt.Fprintf(&b, "description: %q\n", doc.Frontmatter.Description)

	if doc.Frontmatter.Template != "" {
		fmt.Fprintf(&b, "template: %s\n", doc.Frontmatter.Template)
	}

	if hero := doc.Frontmatter.Hero; hero != nil {
		b.WriteString("hero:\n")
		fmt.Fprintf(&b, "  tagline: %q\n", hero.Tagline)
		b.WriteString("  actions:\n")
		for _, action := range hero.Actions {
			fmt.Fprintf(&b, "    - text: %q\n", action.Text)
			fmt.Fprintf(&b, "      link: %s\n", action.Link)
			fmt.Fprintf(&b, "      icon: %s\n", action.Icon)
		}
	}

	b.WriteString("---\n\n")
	b.WriteString(doc.Content)
	return b.String()
}

// structurePrompt asks the model to plan a site: three categories of three
// documents each, with slugs usable as file names
func structurePrompt(topic string) string {
	return fmt.Sprintf(`You are a technical documentation architect. Design the structure of a documentation site for the given topic.

Topic: %q

Respond with this JSON schema:
{
  "topic": "string - the topic",
  "categories": [
    {
      "name": "string - slug (lowercase, hyphens)",
      "label": "string - display label",
      "docs": [
        {
          "slug": "string - slug",
          "title": "string - document title",
          "description": "string - one-sentence description"
        }
      ]
    }
  ],
  "index": {
    "title": "string - site title",
    "tagline": "string - one-line tagline",
    "description": "string - site description (2-3 sentences)"
  }
}

Requirements:
- exactly 3 categories
- exactly 3 documents per category
- slugs use lowercase letters and hyphens only
- progress from beginner to advanced`, topic)
}

// indexPrompt asks for the landing page of a planned site
func indexPrompt(structure *SiteStructure) string {
	return fmt.Sprintf(`Write the landing page for a documentation site titled %q (topic: %q, tagline: %q).

Respond with this JSON schema:
{
  "frontmatter": {
    "title": "string",
    "description": "string",
    "template": "splash",
    "hero": {
      "tagline": "string",
      "actions": [{"text": "string", "link": "string", "icon": "right-arrow"}]
    }
  },
  "content": "string - markdown body introducing the site"
}`, structure.Index.Title, structure.Topic, structure.Index.Tagline)
}

// docPrompt asks for one page's content
func docPrompt(topic string, category Category, doc DocInfo) string {
	return fmt.Sprintf(`Write a documentation page.

Topic: %q
Category: %q
Title: %q
Description: %q

Respond with this JSON schema:
{
  "frontmatter": {
    "title": "string",
    "description": "string"
  },
  "content": "string - markdown body with headings, examples, and code blocks where useful"
}

Requirements:
- thorough but readable technical writing
- use markdown headings starting at level 2`, topic, category.Label, doc.Title, doc.Description)
}
