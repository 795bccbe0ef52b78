// Package inputs turns the flat text configuration of a run into validated
// types.RunInputs.
package inputs

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// metadata keys travel with a run's inputs but are never parsed.
var metadata = map[string]bool{
	"quickRunEmail": true,
	"modelType":     true,
	"modelName":     true,
	"user":          true,
	"created":       true,
	"runTime":       true,
	"climateName":   true,
	"stdout":        true,
	"stderr":        true,
}

// unused keys are accepted from older front-ends but play no part in the
// projection.
var unused = map[string]bool{
	"comRate":         true,
	"comRateIncrease": true,
}

// aliases maps alternate key spellings onto their canonical key.
var aliases = map[string]string{
	"SystemSize":           "systemSize",
	"3rdPartyRate":         "thirdPartyRate",
	"3rdPartyRateIncrease": "thirdPartyRateIncrease",
}

type floatField struct {
	key string
	dst func(*types.RunInputs) *float64
}

var floatFields = []floatField{
	{"systemSize", func(in *types.RunInputs) *float64 { return &in.SystemSize }},
	{"retailRate", func(in *types.RunInputs) *float64 { return &in.RetailRate }},
	{"rateIncrease", func(in *types.RunInputs) *float64 { return &in.RateIncrease }},
	{"thirdPartyRate", func(in *types.RunInputs) *float64 { return &in.ThirdPartyRate }},
	{"thirdPartyRateIncrease", func(in *types.RunInputs) *float64 { return &in.ThirdPartyRateIncrease }},
	{"valueOfSolarRate", func(in *types.RunInputs) *float64 { return &in.ValueOfSolarRate }},
	{"comMonthlyCharge", func(in *types.RunInputs) *float64 { return &in.ComMonthlyCharge }},
	{"comUpfrontCosts", func(in *types.RunInputs) *float64 { return &in.ComUpfrontCosts }},
	{"utilitySolarMonthlyCharge", func(in *types.RunInputs) *float64 { return &in.UtilitySolarMonthlyCharge }},
	{"roofUpfrontCosts", func(in *types.RunInputs) *float64 { return &in.RoofUpfrontCosts }},
	{"greenFuelMix", func(in *types.RunInputs) *float64 { return &in.GreenFuelMix }},
}

// Canonicalize rewrites aliased keys to their canonical spelling and drops
// metadata. It returns an InvalidInput error when a key appears under two
// spellings or is not recognized at all.
func Canonicalize(raw map[string]string) (map[string]string, error) {
	known := map[string]bool{
		"years":         true,
		"monthlyDemand": true,
		"meteringType":  true,
		"zipCode":       true,
	}
	for _, f := range floatFields {
		known[f.key] = true
	}

	out := make(map[string]string, len(raw))
	// sorted so the reported duplicate or unknown key is deterministic
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		if metadata[k] || unused[k] {
			continue
		}
		key := k
		if a, ok := aliases[k]; ok {
			key = a
		}
		if !known[key] {
			return nil, types.InvalidInput("unrecognized input %q", k)
		}
		if _, dup := out[key]; dup {
			return nil, types.InvalidInput("input %q given more than once", key)
		}
		out[key] = strings.TrimSpace(raw[k])
	}
	return out, nil
}

// Parse converts the flat text configuration of a run into validated
// RunInputs.
func Parse(raw map[string]string) (types.RunInputs, error) {
	kv, err := Canonicalize(raw)
	if err != nil {
		return types.RunInputs{}, err
	}

	var in types.RunInputs
	// metering type first so a bogus value is reported as a configuration
	// problem even if other fields are also bad
	in.MeteringType = types.MeteringType(kv["meteringType"])
	if !in.MeteringType.Valid() {
		return types.RunInputs{}, types.Configuration("unrecognized metering type %q", kv["meteringType"])
	}
	in.ZipCode = kv["zipCode"]

	for _, f := range floatFields {
		v, err := parseFloat(kv, f.key)
		if err != nil {
			return types.RunInputs{}, err
		}
		*f.dst(&in) = v
	}

	years, ok := kv["years"]
	if !ok || years == "" {
		return types.RunInputs{}, types.InvalidInput("missing input %q", "years")
	}
	in.Years, err = strconv.Atoi(years)
	if err != nil {
		// accept "25.0" the way the original float-then-int conversion did
		f, ferr := strconv.ParseFloat(years, 64)
		if ferr != nil || f != float64(int(f)) {
			return types.RunInputs{}, types.InvalidInput("years must be a whole number, got %q", years)
		}
		in.Years = int(f)
	}

	if in.MonthlyDemand, err = ParseDemand(kv["monthlyDemand"]); err != nil {
		return types.RunInputs{}, err
	}

	if err := in.Validate(); err != nil {
		return types.RunInputs{}, err
	}
	return in, nil
}

func parseFloat(kv map[string]string, key string) (float64, error) {
	s, ok := kv[key]
	if !ok || s == "" {
		return 0, types.InvalidInput("missing input %q", key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, types.InvalidInput("%s must be a number, got %q", key, s)
	}
	return v, nil
}

// ParseDemand parses a comma-separated list of exactly 12 monthly demand
// values in kWh.
func ParseDemand(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, types.InvalidInput("missing input %q", "monthlyDemand")
	}
	parts := strings.Split(s, ",")
	if len(parts) != 12 {
		return nil, types.InvalidInput("monthlyDemand must have 12 comma-separated values, got %d", len(parts))
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, types.InvalidInput("monthlyDemand[%d] must be a number, got %q", i, strings.TrimSpace(p))
		}
		out[i] = v
	}
	return out, nil
}

// Defaults returns the reference household used by the self-test: a 9kW
// system in zip 64735 over 25 years under net metering.
func Defaults() map[string]string {
	return map[string]string{
		"zipCode":                   "64735",
		"systemSize":                "9",
		"years":                     "25",
		"meteringType":              string(types.MeteringNet),
		"retailRate":                "0.11",
		"valueOfSolarRate":          "0.07",
		"monthlyDemand":             "3000,3000,3000,3000,3000,3000,3000,3000,3000,3000,3000,3000",
		"rateIncrease":              "2.5",
		"roofUpfrontCosts":          "17500",
		"utilitySolarMonthlyCharge": "0",
		"thirdPartyRate":            "0.09",
		"thirdPartyRateIncrease":    "3.5",
		"comUpfrontCosts":           "10000",
		"comMonthlyCharge":          "10",
		"greenFuelMix":              "12",
	}
}

// Merge returns base overlaid with override. Aliased keys in override
// replace their canonical counterpart in base.
func Merge(base, override map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = map[string]string{}
	}
	for k, v := range override {
		if a, ok := aliases[k]; ok {
			delete(out, a)
		}
		for alias, canonical := range aliases {
			if canonical == k {
				delete(out, alias)
			}
		}
		out[k] = v
	}
	return out
}

// LoadFile reads a YAML document of run inputs. Scalars are kept as their
// text, and monthlyDemand may be given either as a YAML sequence or as a
// comma-separated string.
func LoadFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading inputs file: %w", err)
	}
	return LoadYAML(raw)
}

// LoadYAML decodes a YAML document of run inputs.
func LoadYAML(raw []byte) (map[string]string, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, types.InvalidInput("error decoding inputs yaml: %v", err)
	}
	out := make(map[string]string, len(doc))
	for k, n := range doc {
		switch n.Kind {
		case yaml.ScalarNode:
			out[k] = n.Value
		case yaml.SequenceNode:
			vals := make([]string, 0, len(n.Content))
			for _, c := range n.Content {
				if c.Kind != yaml.ScalarNode {
					return nil, types.InvalidInput("%s: line %d: expected a list of numbers", k, c.Line)
				}
				vals = append(vals, c.Value)
			}
			out[k] = strings.Join(vals, ",")
		default:
			return nil, types.InvalidInput("%s: line %d: unsupported value", k, n.Line)
		}
	}
	return out, nil
}
