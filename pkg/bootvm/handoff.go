// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootvm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// Hex is an address or register value rendered in hexadecimal.
type Hex uint64

// MarshalYAML implements yaml.Marshaler.
func (h Hex) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: fmt.Sprintf("%#x", uint64(h)),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hex) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar address", node.Line)
	}
	v, err := strconv.ParseUint(node.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*h = Hex(v)
	return nil
}

// HandoffRegion describes one mapped region to the next stage.
type HandoffRegion struct {
	Virtual  Hex    `yaml:"virtual"`
	Physical Hex    `yaml:"physical"`
	Size     Hex    `yaml:"size"`
	Opts     string `yaml:"opts"`
}

// Handoff is what the next stage needs to enable the MMU on every context
// and find its boot structures.
type Handoff struct {
	LowRoot       Hex             `yaml:"low_root"`
	SystemRoot    Hex             `yaml:"system_root"`
	MetadataTable Hex             `yaml:"metadata_table"`
	ContextRoots  []Hex           `yaml:"context_roots"`
	Scratch       Hex             `yaml:"scratch"`
	MAIR          Hex             `yaml:"mair"`
	TCR           Hex             `yaml:"tcr"`
	Tables        int             `yaml:"tables"`
	Paging        bool            `yaml:"paging"`
	Regions       []HandoffRegion `yaml:"regions,omitempty"`
}

// Handoff returns the handoff description of the address space built so far.
func (b *AddressSpaceBuilder) Handoff() Handoff {
	h := Handoff{
		Paging: b.Paging(),
		MAIR:   Hex(pagetables.MAIR),
		TCR:    Hex(b.tcr),
	}
	if !h.Paging {
		return h
	}
	h.LowRoot = Hex(b.low.physical)
	h.SystemRoot = Hex(b.system.physical)
	h.MetadataTable = Hex(b.metadata.physical)
	h.Scratch = Hex(b.scratch)
	h.Tables = b.Tables()
	for _, root := range b.ContextRoots() {
		h.ContextRoots = append(h.ContextRoots, Hex(root))
	}
	for _, r := range b.Regions() {
		h.Regions = append(h.Regions, HandoffRegion{
			Virtual:  Hex(r.Virtual.Start),
			Physical: Hex(r.Physical),
			Size:     Hex(r.Virtual.Length()),
			Opts:     r.Opts.String(),
		})
	}
	return h
}

// Marshal renders h as YAML.
func (h Handoff) Marshal() ([]byte, error) {
	return yaml.Marshal(h)
}

// handoffSchema is the JSON schema of a rendered handoff.
const handoffSchema = `{
  "type": "object",
  "required": ["low_root", "system_root", "metadata_table", "context_roots", "scratch", "mair", "tcr", "tables", "paging"],
  "additionalProperties": false,
  "properties": {
    "low_root": {"$ref": "#/definitions/hex"},
    "system_root": {"$ref": "#/definitions/hex"},
    "metadata_table": {"$ref": "#/definitions/hex"},
    "context_roots": {
      "type": "array",
      "maxItems": 32,
      "items": {"$ref": "#/definitions/hex"}
    },
    "scratch": {"$ref": "#/definitions/hex"},
    "mair": {"$ref": "#/definitions/hex"},
    "tcr": {"$ref": "#/definitions/hex"},
    "tables": {"type": "integer", "minimum": 0},
    "paging": {"type": "boolean"},
    "regions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["virtual", "physical", "size", "opts"],
        "additionalProperties": false,
        "properties": {
          "virtual": {"$ref": "#/definitions/hex"},
          "physical": {"$ref": "#/definitions/hex"},
          "size": {"$ref": "#/definitions/hex"},
          "opts": {"type": "string"}
        }
      }
    }
  },
  "definitions": {
    "hex": {"type": "integer", "minimum": 0}
  }
}`

// ParseHandoff parses a handoff rendered by Handoff.Marshal. The document is
// checked against handoffSchema before it is decoded.
func ParseHandoff(data []byte) (Handoff, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Handoff{}, fmt.Errorf("parsing handoff: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(handoffSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Handoff{}, fmt.Errorf("validating handoff: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Handoff{}, fmt.Errorf("invalid handoff: %s", strings.Join(msgs, "; "))
	}

	var h Handoff
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Handoff{}, fmt.Errorf("parsing handoff: %w", err)
	}
	return h, nil
}
