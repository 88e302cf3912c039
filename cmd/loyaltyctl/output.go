package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// print writes v as indented JSON or as YAML. YAML keys follow the json tags:
// the JSON document is re-parsed as YAML and restyled to block form.
func (a *app) print(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if a.output == "json" {
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// familyID accepts a family id or a TF-NNNNNN client code.
func (a *app) familyID(cmd *cobra.Command, ref string) (string, error) {
	if !strings.HasPrefix(strings.ToUpper(ref), "TF-") {
		return ref, nil
	}
	f, err := a.svc.FindFamilyByClientCode(cmd.Context(), ref)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func parseDay(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
