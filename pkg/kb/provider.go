package kb

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pgx-risk-engine/internal/domain"
)

// Provider is the in-memory knowledge base. All indexes are built once
// during construction; afterwards the provider is read-only and shared
// by reference across every analysis.
type Provider struct {
	version  string
	source   string
	loadedAt time.Time

	geneDrug   map[string]map[string]*domain.GeneDrugRule
	byDrug     map[string][]*domain.GeneDrugRule
	ddi        map[string]*domain.DrugDrugRule
	inhibitors map[string][]domain.EnzymeModulator
	inducers   map[string][]domain.EnzymeModulator
	dosing     map[string]*domain.DosingGuideline
	renal      map[string]*domain.RenalRule
	hepatic    map[string]*domain.HepaticRule
	stages     map[string]StageLabel
	known      map[string]bool
	genes      []string
	drugCount  int
}

// NewProvider builds the query indexes from loaded documents. Gene
// symbols index uppercase, drug names through the shared normalizer, so
// lookups are case-insensitive.
func NewProvider(docs Documents, source string) (*Provider, error) {
	p := &Provider{
		version:    docs.GeneDrug.Version,
		source:     source,
		loadedAt:   time.Now().UTC(),
		geneDrug:   make(map[string]map[string]*domain.GeneDrugRule),
		byDrug:     make(map[string][]*domain.GeneDrugRule),
		ddi:        make(map[string]*domain.DrugDrugRule),
		inhibitors: make(map[string][]domain.EnzymeModulator),
		inducers:   make(map[string][]domain.EnzymeModulator),
		dosing:     make(map[string]*domain.DosingGuideline),
		renal:      make(map[string]*domain.RenalRule),
		hepatic:    make(map[string]*domain.HepaticRule),
		stages:     docs.Dosing.RenalAdjustments.Thresholds,
		known:      make(map[string]bool),
	}
	if p.version == "" {
		p.version = docs.Interactions.Version
	}

	for i := range docs.GeneDrug.GeneDrugInteractions {
		rule := docs.GeneDrug.GeneDrugInteractions[i]
		if rule.Gene == "" || rule.Drug == "" {
			return nil, fmt.Errorf("kb: gene_drug_interactions[%d]: gene and drug are required", i)
		}
		for phenotype := range rule.PhenotypeImpacts {
			if !phenotype.IsValid() {
				return nil, fmt.Errorf("kb: rule %s/%s: %w: %q", rule.Gene, rule.Drug, domain.ErrInvalidPhenotype, phenotype)
			}
		}

		gene := strings.ToUpper(rule.Gene)
		drug := domain.NormalizeDrugName(rule.Drug)
		if p.geneDrug[gene] == nil {
			p.geneDrug[gene] = make(map[string]*domain.GeneDrugRule)
		}
		if _, dup := p.geneDrug[gene][drug]; dup {
			return nil, fmt.Errorf("kb: duplicate gene-drug rule %s/%s", gene, drug)
		}
		p.geneDrug[gene][drug] = &rule
		p.byDrug[drug] = append(p.byDrug[drug], &rule)
		p.known[drug] = true
	}

	for i := range docs.Interactions.DrugDrugInteractions {
		rule := docs.Interactions.DrugDrugInteractions[i]
		if rule.DrugA == "" || rule.DrugB == "" {
			return nil, fmt.Errorf("kb: drug_drug_interactions[%d]: both drugs are required", i)
		}
		a, b := domain.CanonicalPair([]string{rule.DrugA, rule.DrugB})
		key := a + "|" + b
		if _, dup := p.ddi[key]; dup {
			return nil, fmt.Errorf("kb: duplicate drug pair entry %s + %s", a, b)
		}
		p.ddi[key] = &rule
		p.known[a] = true
		p.known[b] = true
	}

	for enzyme, set := range docs.Interactions.CYPInhibitors {
		enzyme = strings.ToUpper(enzyme)
		for _, drug := range set.Strong {
			p.addModulator(p.inhibitors, enzyme, drug, domain.STRONG_INHIBITOR)
		}
		for _, drug := range set.Moderate {
			p.addModulator(p.inhibitors, enzyme, drug, domain.MODERATE_INHIBITOR)
		}
	}
	for enzyme, drugs := range docs.Interactions.CYPInducers {
		enzyme = strings.ToUpper(enzyme)
		for _, drug := range drugs {
			p.addModulator(p.inducers, enzyme, drug, domain.INDUCER)
		}
	}

	for drug, entry := range docs.Dosing.DosingGuidelines {
		drug = domain.NormalizeDrugName(drug)
		p.dosing[drug] = &domain.DosingGuideline{
			Drug:         drug,
			Alternatives: entry.Alternatives,
			Monitoring:   entry.Monitoring,
			Notes:        entry.Notes,
		}
		p.known[drug] = true
	}
	for drug, entry := range docs.Dosing.RenalAdjustments.Drugs {
		drug = domain.NormalizeDrugName(drug)
		p.renal[drug] = &domain.RenalRule{Drug: drug, EGFRCutoff: entry.EGFRCutoff, Action: entry.Action}
		p.known[drug] = true
	}
	for drug, action := range docs.Dosing.HepaticAdjustments.Drugs {
		drug = domain.NormalizeDrugName(drug)
		p.hepatic[drug] = &domain.HepaticRule{Drug: drug, Action: action}
		p.known[drug] = true
	}

	p.genes = make([]string, 0, len(p.geneDrug))
	for gene := range p.geneDrug {
		p.genes = append(p.genes, gene)
	}
	sort.Strings(p.genes)
	p.drugCount = len(p.known)

	return p, nil
}

func (p *Provider) addModulator(index map[string][]domain.EnzymeModulator, enzyme, drug string, role domain.ModulatorRole) {
	drug = domain.NormalizeDrugName(drug)
	index[enzyme] = append(index[enzyme], domain.EnzymeModulator{
		Drug:   drug,
		Enzyme: enzyme,
		Role:   role,
	})
	p.known[drug] = true
}

// GeneDrugRule returns the CPIC rule for a gene and drug, if tabulated.
func (p *Provider) GeneDrugRule(gene, drug string) (*domain.GeneDrugRule, bool) {
	rules, ok := p.geneDrug[strings.ToUpper(gene)]
	if !ok {
		return nil, false
	}
	rule, ok := rules[domain.NormalizeDrugName(drug)]
	return rule, ok
}

// RulesForDrug returns every gene-drug rule governing the drug.
func (p *Provider) RulesForDrug(drug string) []*domain.GeneDrugRule {
	return p.byDrug[domain.NormalizeDrugName(drug)]
}

// DDI returns the interaction entry for an unordered drug pair.
func (p *Provider) DDI(drugA, drugB string) (*domain.DrugDrugRule, bool) {
	a, b := domain.CanonicalPair([]string{drugA, drugB})
	rule, ok := p.ddi[a+"|"+b]
	return rule, ok
}

// InhibitorsOf returns the tabulated inhibitors of an enzyme, tagged
// strong or moderate.
func (p *Provider) InhibitorsOf(enzyme string) []domain.EnzymeModulator {
	return p.inhibitors[strings.ToUpper(enzyme)]
}

// InducersOf returns the tabulated inducers of an enzyme.
func (p *Provider) InducersOf(enzyme string) []domain.EnzymeModulator {
	return p.inducers[strings.ToUpper(enzyme)]
}

// ModulatorsIn filters a medication list down to the drugs that
// modulate the given enzyme. Result order follows the tabulated order,
// inhibitors before inducers.
func (p *Provider) ModulatorsIn(drugs []string, enzyme string) []domain.EnzymeModulator {
	present := make(map[string]bool, len(drugs))
	for _, d := range drugs {
		present[domain.NormalizeDrugName(d)] = true
	}

	enzyme = strings.ToUpper(enzyme)
	var found []domain.EnzymeModulator
	for _, mod := range p.inhibitors[enzyme] {
		if present[mod.Drug] {
			found = append(found, mod)
		}
	}
	for _, mod := range p.inducers[enzyme] {
		if present[mod.Drug] {
			found = append(found, mod)
		}
	}
	return found
}

// DosingGuideline returns substitute drugs and monitoring text for a drug.
func (p *Provider) DosingGuideline(drug string) (*domain.DosingGuideline, bool) {
	entry, ok := p.dosing[domain.NormalizeDrugName(drug)]
	return entry, ok
}

// RenalRule returns the renal dose review rule for a drug, if any.
func (p *Provider) RenalRule(drug string) (*domain.RenalRule, bool) {
	entry, ok := p.renal[domain.NormalizeDrugName(drug)]
	return entry, ok
}

// HepaticRule returns the hepatic dose review rule for a drug, if any.
func (p *Provider) HepaticRule(drug string) (*domain.HepaticRule, bool) {
	entry, ok := p.hepatic[domain.NormalizeDrugName(drug)]
	return entry, ok
}

// RenalStage labels an eGFR value with its KDIGO stage. Stage labels
// come from the loaded thresholds table with standard fallbacks.
func (p *Provider) RenalStage(egfr float64) string {
	switch {
	case egfr >= 90:
		return p.stageLabel("normal", "Normal")
	case egfr >= 60:
		return p.stageLabel("mild_impairment", "Mild impairment")
	case egfr >= 30:
		return p.stageLabel("moderate_impairment", "Moderate impairment")
	case egfr >= 15:
		return p.stageLabel("severe_impairment", "Severe impairment")
	default:
		return p.stageLabel("kidney_failure", "Kidney failure")
	}
}

func (p *Provider) stageLabel(key, fallback string) string {
	if stage, ok := p.stages[key]; ok && stage.Label != "" {
		return stage.Label
	}
	return fallback
}

// KnownDrug reports whether any table references the drug.
func (p *Provider) KnownDrug(drug string) bool {
	return p.known[domain.NormalizeDrugName(drug)]
}

// Genes returns the pharmacogenes covered by gene-drug rules, sorted.
func (p *Provider) Genes() []string {
	return p.genes
}

// Info describes the loaded snapshot.
func (p *Provider) Info() domain.KBInfo {
	ruleCount := 0
	for _, rules := range p.geneDrug {
		ruleCount += len(rules)
	}
	return domain.KBInfo{
		Version:          p.version,
		Source:           p.source,
		GeneDrugRules:    ruleCount,
		DrugDrugRules:    len(p.ddi),
		Genes:            len(p.genes),
		Drugs:            p.drugCount,
		DosingGuidelines: len(p.dosing),
		LoadedAt:         p.loadedAt,
	}
}
