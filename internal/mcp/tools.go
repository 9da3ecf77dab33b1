package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/service"
)

// Tools exposes the engine and knowledge base as MCP tool handlers.
type Tools struct {
	engine *service.Engine
	kb     domain.KnowledgeBase
	parser *service.InputParser
	logger *logrus.Logger
}

// NewTools creates the tool set over an engine and its knowledge base.
func NewTools(engine *service.Engine, kb domain.KnowledgeBase, logger *logrus.Logger) *Tools {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tools{
		engine: engine,
		kb:     kb,
		parser: service.NewInputParser(logger),
		logger: logger,
	}
}

// Register wires every tool into the MCP server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_patient",
		Description: "Run the pharmacogenomic interpretation pipeline for one patient. " +
			"Input is a patient document with patient_id, genotype (gene to diplotype/phenotype), " +
			"medications, and optional lab_values. Returns findings with risk scores, " +
			"dosing recommendations, and the aggregate risk summary.",
	}, t.AnalyzePatient)

	mcp.AddTool(server, &mcp.Tool{
		Name: "lookup_gene_drug_rule",
		Description: "Look up the CPIC gene-drug rule for a pharmacogene and drug, " +
			"including the per-phenotype impact table.",
	}, t.LookupGeneDrugRule)

	mcp.AddTool(server, &mcp.Tool{
		Name: "lookup_ddi",
		Description: "Look up the tabulated drug-drug interaction for a pair of drugs. " +
			"Pair order does not matter.",
	}, t.LookupDDI)

	mcp.AddTool(server, &mcp.Tool{
		Name: "list_enzyme_modulators",
		Description: "List the tabulated inhibitors (strong and moderate) and inducers " +
			"of a CYP enzyme, e.g. CYP2D6.",
	}, t.ListEnzymeModulators)

	mcp.AddTool(server, &mcp.Tool{
		Name: "dosing_and_alternatives",
		Description: "Return the dosing guideline for a drug: alternative agents, " +
			"monitoring guidance, and any renal or hepatic dose review rules.",
	}, t.DosingAndAlternatives)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "kb_info",
		Description: "Describe the loaded knowledge base snapshot: version, source, and table sizes.",
	}, t.KBInfo)

	t.logger.WithField("tool_count", 6).Info("Registered MCP tools")
}

type analyzePatientArgs struct {
	Patient map[string]any `json:"patient"`
}

// AnalyzePatient runs the full pipeline for one patient document.
func (t *Tools) AnalyzePatient(ctx context.Context, req *mcp.CallToolRequest, args analyzePatientArgs) (*mcp.CallToolResult, any, error) {
	if len(args.Patient) == 0 {
		return nil, nil, fmt.Errorf("patient document is required")
	}

	payload, err := json.Marshal(args.Patient)
	if err != nil {
		return nil, nil, fmt.Errorf("encode patient document: %w", err)
	}

	patient, err := t.parser.ParsePatient(payload)
	if err != nil {
		return nil, nil, err
	}

	report, err := t.engine.Analyze(ctx, patient)
	if err != nil {
		return nil, nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"patient_id": report.PatientID,
		"findings":   len(report.Findings),
	}).Debug("MCP analysis completed")

	return nil, report, nil
}

type geneDrugArgs struct {
	Gene string `json:"gene"`
	Drug string `json:"drug"`
}

// LookupGeneDrugRule returns the CPIC rule for a gene and drug.
func (t *Tools) LookupGeneDrugRule(ctx context.Context, req *mcp.CallToolRequest, args geneDrugArgs) (*mcp.CallToolResult, any, error) {
	if args.Gene == "" || args.Drug == "" {
		return nil, nil, fmt.Errorf("both gene and drug are required")
	}

	rule, ok := t.kb.GeneDrugRule(args.Gene, args.Drug)
	if !ok {
		return nil, nil, fmt.Errorf("no gene-drug rule tabulated for %s and %s",
			strings.ToUpper(args.Gene), domain.NormalizeDrugName(args.Drug))
	}
	return nil, rule, nil
}

type ddiArgs struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
}

// LookupDDI returns the interaction entry for an unordered drug pair.
func (t *Tools) LookupDDI(ctx context.Context, req *mcp.CallToolRequest, args ddiArgs) (*mcp.CallToolResult, any, error) {
	if args.DrugA == "" || args.DrugB == "" {
		return nil, nil, fmt.Errorf("both drug_a and drug_b are required")
	}

	rule, ok := t.kb.DDI(args.DrugA, args.DrugB)
	if !ok {
		return nil, nil, fmt.Errorf("no tabulated interaction between %s and %s",
			domain.NormalizeDrugName(args.DrugA), domain.NormalizeDrugName(args.DrugB))
	}
	return nil, rule, nil
}

type enzymeArgs struct {
	Enzyme string `json:"enzyme"`
}

type enzymeModulators struct {
	Enzyme     string                   `json:"enzyme"`
	Inhibitors []domain.EnzymeModulator `json:"inhibitors"`
	Inducers   []domain.EnzymeModulator `json:"inducers"`
}

// ListEnzymeModulators lists the tabulated inhibitors and inducers of
// an enzyme. An enzyme with no entries returns empty lists, which is a
// valid answer, not an error.
func (t *Tools) ListEnzymeModulators(ctx context.Context, req *mcp.CallToolRequest, args enzymeArgs) (*mcp.CallToolResult, any, error) {
	if args.Enzyme == "" {
		return nil, nil, fmt.Errorf("enzyme is required")
	}

	enzyme := strings.ToUpper(strings.TrimSpace(args.Enzyme))
	answer := enzymeModulators{
		Enzyme:     enzyme,
		Inhibitors: t.kb.InhibitorsOf(enzyme),
		Inducers:   t.kb.InducersOf(enzyme),
	}
	if answer.Inhibitors == nil {
		answer.Inhibitors = []domain.EnzymeModulator{}
	}
	if answer.Inducers == nil {
		answer.Inducers = []domain.EnzymeModulator{}
	}
	return nil, answer, nil
}

type drugArgs struct {
	Drug string `json:"drug"`
}

type dosingAnswer struct {
	Drug        string                  `json:"drug"`
	Guideline   *domain.DosingGuideline `json:"guideline,omitempty"`
	RenalRule   *domain.RenalRule       `json:"renal_rule,omitempty"`
	HepaticRule *domain.HepaticRule     `json:"hepatic_rule,omitempty"`
}

// DosingAndAlternatives collects dosing guidance for one drug.
func (t *Tools) DosingAndAlternatives(ctx context.Context, req *mcp.CallToolRequest, args drugArgs) (*mcp.CallToolResult, any, error) {
	if args.Drug == "" {
		return nil, nil, fmt.Errorf("drug is required")
	}

	drug := domain.NormalizeDrugName(args.Drug)
	answer := dosingAnswer{Drug: drug}
	if guideline, ok := t.kb.DosingGuideline(drug); ok {
		answer.Guideline = guideline
	}
	if rule, ok := t.kb.RenalRule(drug); ok {
		answer.RenalRule = rule
	}
	if rule, ok := t.kb.HepaticRule(drug); ok {
		answer.HepaticRule = rule
	}

	if answer.Guideline == nil && answer.RenalRule == nil && answer.HepaticRule == nil {
		if !t.kb.KnownDrug(drug) {
			return nil, nil, fmt.Errorf("drug %q is not in the knowledge base", drug)
		}
		return nil, nil, fmt.Errorf("no dosing guidance tabulated for %q", drug)
	}
	return nil, answer, nil
}

type kbInfoArgs struct{}

// KBInfo describes the loaded knowledge base snapshot.
func (t *Tools) KBInfo(ctx context.Context, req *mcp.CallToolRequest, args kbInfoArgs) (*mcp.CallToolResult, any, error) {
	return nil, t.kb.Info(), nil
}
