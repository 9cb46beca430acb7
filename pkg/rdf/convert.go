// Package rdf converts between the JSON-oriented FHIR resource model and the
// RDF/Turtle representation stored in Solid pods.
//
// The mapping is structural: every element maps to a predicate in the
// http://hl7.org/fhir/ namespace, nested elements become blank nodes, and
// repeating elements carry an fhir:index literal so that ordering survives
// the round trip. Scalar list entries are wrapped in a blank node with an
// fhir:value leaf.
package rdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	rdf2go "github.com/deiu/rdf2go"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
)

const (
	fhirNS = "http://hl7.org/fhir/"
	xsdNS  = "http://www.w3.org/2001/XMLSchema#"

	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	indexKey = "index"
	valueKey = "value"
)

// Serialize renders a resource as Turtle with the given subject URI.
func Serialize(r model.Resource, subject string) (string, error) {
	data, err := model.ToJSON(r)
	if err != nil {
		return "", err
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return "", fmt.Errorf("failed to decode %s for RDF encoding: %w", r.ResourceType(), err)
	}

	g := rdf2go.NewGraph(subject)
	subj := rdf2go.NewResource(subject)
	g.AddTriple(subj, rdf2go.NewResource(rdfType), rdf2go.NewResource(fhirNS+r.ResourceType()))

	blankCounter := 0
	for _, key := range sortedKeys(tree) {
		if key == "resourceType" {
			continue
		}
		if err := addValue(g, subj, key, tree[key], &blankCounter); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := g.Serialize(&buf, "text/turtle"); err != nil {
		return "", fmt.Errorf("failed to serialize %s as Turtle: %w", r.ResourceType(), err)
	}
	return buf.String(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func addValue(g *rdf2go.Graph, subj rdf2go.Term, key string, value any, blankCounter *int) error {
	pred := rdf2go.NewResource(fhirNS + key)

	switch v := value.(type) {
	case nil:
		return nil
	case string:
		g.AddTriple(subj, pred, rdf2go.NewLiteral(v))
	case bool:
		g.AddTriple(subj, pred, rdf2go.NewLiteralWithDatatype(strconv.FormatBool(v), rdf2go.NewResource(xsdNS+"boolean")))
	case float64:
		g.AddTriple(subj, pred, numberLiteral(v))
	case map[string]any:
		node := newBlank(blankCounter)
		g.AddTriple(subj, pred, node)
		return addObject(g, node, v, blankCounter)
	case []any:
		for i, elem := range v {
			node := newBlank(blankCounter)
			g.AddTriple(subj, pred, node)
			g.AddTriple(node, rdf2go.NewResource(fhirNS+indexKey),
				rdf2go.NewLiteralWithDatatype(strconv.Itoa(i), rdf2go.NewResource(xsdNS+"integer")))
			switch elem := elem.(type) {
			case map[string]any:
				if err := addObject(g, node, elem, blankCounter); err != nil {
					return err
				}
			case []any:
				return fmt.Errorf("nested arrays are not representable for element %q", key)
			default:
				if err := addValue(g, node, valueKey, elem, blankCounter); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("unsupported JSON value %T for element %q", value, key)
	}
	return nil
}

func addObject(g *rdf2go.Graph, node rdf2go.Term, obj map[string]any, blankCounter *int) error {
	for _, key := range sortedKeys(obj) {
		if err := addValue(g, node, key, obj[key], blankCounter); err != nil {
			return err
		}
	}
	return nil
}

func newBlank(counter *int) rdf2go.Term {
	*counter++
	return rdf2go.NewBlankNode(fmt.Sprintf("b%d", *counter))
}

func numberLiteral(v float64) rdf2go.Term {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	datatype := "decimal"
	if !strings.Contains(s, ".") {
		datatype = "integer"
	}
	return rdf2go.NewLiteralWithDatatype(s, rdf2go.NewResource(xsdNS+datatype))
}

// Parse reads a Turtle document and reconstructs the resource of the given
// type. Unknown predicates outside the FHIR namespace are ignored.
func Parse(turtle, base, resourceType string) (model.Resource, error) {
	g := rdf2go.NewGraph(base)
	if err := g.Parse(strings.NewReader(turtle), "text/turtle"); err != nil {
		return nil, fmt.Errorf("failed to parse Turtle: %w", err)
	}

	root := g.One(nil, rdf2go.NewResource(rdfType), rdf2go.NewResource(fhirNS+resourceType))
	if root == nil {
		return nil, fmt.Errorf("no %s node found in Turtle document", resourceType)
	}

	tree, _, _, err := nodeToJSON(g, root.Subject)
	if err != nil {
		return nil, err
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s node does not decode to an object", resourceType)
	}
	obj["resourceType"] = resourceType

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode %s: %w", resourceType, err)
	}
	return model.ParseByType(resourceType, data)
}

// Validate parses the Turtle document and fails when it is not syntactically
// valid RDF. Used as a local check before anything is written to the pod.
func Validate(turtle string) error {
	g := rdf2go.NewGraph("")
	if err := g.Parse(strings.NewReader(turtle), "text/turtle"); err != nil {
		return fmt.Errorf("invalid Turtle: %w", err)
	}
	if g.Len() == 0 {
		return fmt.Errorf("invalid Turtle: document contains no triples")
	}
	return nil
}

// nodeToJSON rebuilds the JSON value for a node. The returned index and flag
// report a repeating-element position when the node carries one.
func nodeToJSON(g *rdf2go.Graph, node rdf2go.Term) (any, int, bool, error) {
	if lit, ok := node.(*rdf2go.Literal); ok {
		v, err := literalValue(lit)
		return v, 0, false, err
	}

	grouped := make(map[string][]rdf2go.Term)
	for _, triple := range g.All(node, nil, nil) {
		pred := triple.Predicate.RawValue()
		if pred == rdfType {
			continue
		}
		key, ok := strings.CutPrefix(pred, fhirNS)
		if !ok || strings.ContainsAny(key, "/#") {
			continue
		}
		grouped[key] = append(grouped[key], triple.Object)
	}

	index, hasIndex := 0, false
	if terms, ok := grouped[indexKey]; ok && len(terms) == 1 {
		if lit, isLit := terms[0].(*rdf2go.Literal); isLit {
			if i, err := strconv.Atoi(lit.Value); err == nil {
				index, hasIndex = i, true
				delete(grouped, indexKey)
			}
		}
	}

	// A wrapped scalar list entry has only an fhir:value leaf left.
	if len(grouped) == 1 && len(grouped[valueKey]) == 1 {
		if lit, isLit := grouped[valueKey][0].(*rdf2go.Literal); isLit {
			v, err := literalValue(lit)
			return v, index, hasIndex, err
		}
	}

	obj := make(map[string]any, len(grouped))
	for key, terms := range grouped {
		value, err := termsToJSON(g, terms)
		if err != nil {
			return nil, 0, false, err
		}
		obj[key] = value
	}
	return obj, index, hasIndex, nil
}

type indexedValue struct {
	value    any
	index    int
	hasIndex bool
}

func termsToJSON(g *rdf2go.Graph, terms []rdf2go.Term) (any, error) {
	values := make([]indexedValue, 0, len(terms))
	anyIndexed := false
	for _, term := range terms {
		v, idx, hasIdx, err := nodeToJSON(g, term)
		if err != nil {
			return nil, err
		}
		anyIndexed = anyIndexed || hasIdx
		values = append(values, indexedValue{value: v, index: idx, hasIndex: hasIdx})
	}

	if len(values) == 1 && !anyIndexed {
		return values[0].value, nil
	}

	sort.SliceStable(values, func(i, j int) bool { return values[i].index < values[j].index })
	list := make([]any, 0, len(values))
	for _, v := range values {
		list = append(list, v.value)
	}
	return list, nil
}

func literalValue(lit *rdf2go.Literal) (any, error) {
	datatype := ""
	if lit.Datatype != nil {
		datatype = lit.Datatype.RawValue()
	}
	switch datatype {
	case xsdNS + "boolean":
		return strconv.ParseBool(lit.Value)
	case xsdNS + "integer", xsdNS + "decimal", xsdNS + "double", xsdNS + "float":
		return strconv.ParseFloat(lit.Value, 64)
	default:
		return lit.Value, nil
	}
}
