package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"google.golang.org/genai"
)

const analyzePrompt = `Analyse cette photo de grille de mots fléchés.

Extrais la structure complète au format JSON suivant :
{
  "rows": <nombre de lignes>,
  "cols": <nombre de colonnes>,
  "cells": [
    [
      {"black": true, "definitions": [{"text": "Définition", "direction": "right"}]},
      {"black": false, "letter": "A"},
      {"black": false},
      ...
    ],
    ...
  ]
}

Règles :
- Chaque case contenant du texte et/ou une flèche est une case définition : "black": true avec "definitions".
- Une case entièrement noire, sans texte, a "black": true et pas de "definitions".
- "direction" vaut "right" si la flèche pointe vers la droite, "down" si elle pointe vers le bas.
- Une case définition peut avoir 1 à 3 définitions.
- Les cases où le joueur écrit ont "black": false. Si une lettre y est déjà écrite, mets-la dans "letter".
- Réponds UNIQUEMENT avec le JSON, sans commentaire ni markdown.`

// scannedGrid is the grid layout returned by the model.
type scannedGrid struct {
	Rows  int             `json:"rows"`
	Cols  int             `json:"cols"`
	Cells [][]scannedCell `json:"cells"`
}

type scannedCell struct {
	Black       bool                `json:"black"`
	Definitions []scannedDefinition `json:"definitions,omitempty"`
	Letter      string              `json:"letter,omitempty"`
}

type scannedDefinition struct {
	Text      string `json:"text"`
	Direction string `json:"direction"`
}

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// GeminiScanner reads printed grids from photos with a Gemini model.
type GeminiScanner struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiScanner connects to Vertex AI with Application Default Credentials
// when cfg names a project, otherwise to the Gemini API with cfg.APIKey.
func NewGeminiScanner(ctx context.Context, cfg GCPConfig) (*GeminiScanner, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.ProjectID != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cmp.Or(cfg.Region, defaultRegion)
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("gemini: set gcp.project_id or gcp.api_key")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiScanner{
		client:  client,
		model:   cmp.Or(cfg.Model, defaultModel),
		timeout: cfg.Timeout,
	}, nil
}

// scanSchema constrains the model's answer to the scannedGrid shape.
var scanSchema = &genai.Schema{
	Type:     genai.TypeObject,
	Required: []string{"rows", "cols", "cells"},
	Properties: map[string]*genai.Schema{
		"rows": {Type: genai.TypeInteger},
		"cols": {Type: genai.TypeInteger},
		"cells": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:     genai.TypeObject,
					Required: []string{"black"},
					Properties: map[string]*genai.Schema{
						"black":  {Type: genai.TypeBoolean},
						"letter": {Type: genai.TypeString},
						"definitions": {
							Type: genai.TypeArray,
							Items: &genai.Schema{
								Type:     genai.TypeObject,
								Required: []string{"text", "direction"},
								Properties: map[string]*genai.Schema{
									"text":      {Type: genai.TypeString},
									"direction": {Type: genai.TypeString, Enum: []string{"right", "down"}},
								},
							},
						},
					},
				},
			},
		},
	},
}

// AnalyzeImage sends a photo to the model and returns the grid it reads.
func (g *GeminiScanner) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Grid, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: analyzePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.1)),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   scanSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}
	return parseScannedGrid([]byte(text))
}

// parseScannedGrid converts the model's answer into an editor grid.
// Definition cells become clues, plain black cells become blocked and
// writing cells become solutions. Missing cells are left unset.
func parseScannedGrid(data []byte) (*Grid, error) {
	var sg scannedGrid
	if err := json.Unmarshal(data, &sg); err != nil {
		return nil, fmt.Errorf("parse grid JSON: %w\nraw response: %s", err, data)
	}
	if sg.Rows == 0 || sg.Cols == 0 || len(sg.Cells) == 0 {
		return nil, fmt.Errorf("invalid grid: %dx%d with %d cell rows", sg.Rows, sg.Cols, len(sg.Cells))
	}
	if err := checkDimensions(sg.Rows, sg.Cols); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}

	g := NewGrid(sg.Rows, sg.Cols)
	for r, row := range sg.Cells {
		if r >= g.Rows {
			break
		}
		for c, sc := range row {
			if c >= g.Cols {
				break
			}
			g.set(r, c, sc.cell())
		}
	}
	return g, nil
}

func (sc scannedCell) cell() Cell {
	if !sc.Black {
		letter := strings.ToUpper(strings.TrimSpace(sc.Letter))
		if r, size := utf8.DecodeRuneInString(letter); size != len(letter) || !unicode.IsLetter(r) {
			letter = ""
		}
		return Solution{Letter: letter}
	}
	if len(sc.Definitions) == 0 {
		return Blocked{}
	}

	defs := sc.Definitions
	if len(defs) > MaxSubclues {
		defs = defs[:MaxSubclues]
	}
	clue := Clue{Subclues: make([]Subclue, len(defs))}
	for i, d := range defs {
		dir := Across
		if strings.EqualFold(d.Direction, "down") {
			dir = Down
		}
		clue.Subclues[i] = Subclue{Text: strings.TrimSpace(d.Text), Direction: dir}
	}
	return clue
}
