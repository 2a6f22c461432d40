package nlp

import (
	"FinChat/internal/entity"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const IncomeCategory = "Receita"

// IResolver interprets free text locally, without a server round trip.
// Implementations must be deterministic and free of side effects.
type IResolver interface {
	Resolve(text string, snap entity.Snapshot) entity.RichPayload
}

type rule struct {
	name  string
	apply func(r *Resolver, in input, snap entity.Snapshot) entity.RichPayload
}

type input struct {
	folded string
	tokens []token
	words  map[string]bool
}

// Rules run in this order and the first match wins. Income is tried before
// expense because "<amount> de <x>" is ambiguous and only income narrows it to
// a fixed set of sources; snapshot commands come last so that "paguei o cartão"
// records an expense instead of listing cards.
var rules = []rule{
	{name: "income", apply: (*Resolver).income},
	{name: "expense", apply: (*Resolver).expense},
	{name: "balance", apply: (*Resolver).balance},
	{name: "cards", apply: (*Resolver).cards},
	{name: "menu", apply: (*Resolver).menu},
}

var (
	incomeKeywords  = []string{"recebi", "ganhei", "entrou"}
	expenseKeywords = []string{"gastei", "paguei"}
	balanceKeywords = []string{"saldo"}
	cardKeywords    = []string{"cartao", "cartoes", "limite", "limites"}
	menuKeywords    = []string{"menu", "ajuda", "opcoes", "comandos"}

	balancePhrases = []string{"quanto tenho", "quanto eu tenho"}

	prepositions = map[string]bool{
		"no": true, "na": true, "em": true, "de": true, "do": true, "pelo": true, "pela": true,
	}
	determiners = map[string]bool{
		"um": true, "uma": true, "o": true, "a": true, "os": true, "as": true, "meu": true, "minha": true,
	}

	incomeSourcePattern = regexp.MustCompile(amountExpr + `\s*(?:reais\s+)?(?:do|de|pelo)\s+(?:freela|trabalho|salario)\b`)
	expensePlacePattern = regexp.MustCompile(amountExpr + `\s*(?:reais\s+)?(?:no|na|em|de)\s+\pL`)

	incomeKeywordAmount  = keywordAmountPattern(incomeKeywords)
	expenseKeywordAmount = keywordAmountPattern(expenseKeywords)
)

type Resolver struct {
	vocab *Vocabulary
}

func NewResolver(vocab *Vocabulary) *Resolver {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Resolver{vocab: vocab}
}

func (r *Resolver) Resolve(text string, snap entity.Snapshot) entity.RichPayload {
	p, _ := r.ResolveRule(text, snap)
	return p
}

// ResolveRule also reports which rule produced the payload, for logging.
func (r *Resolver) ResolveRule(text string, snap entity.Snapshot) (entity.RichPayload, string) {
	if strings.TrimSpace(text) == "" {
		return nil, ""
	}

	in := newInput(text)
	for _, rl := range rules {
		if p := rl.apply(r, in, snap); p != nil {
			return p, rl.name
		}
	}
	return nil, ""
}

func newInput(text string) input {
	tokens := tokenize(text)
	words := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		words[t.clean] = true
	}
	return input{
		folded: foldText(text),
		tokens: tokens,
		words:  words,
	}
}

func (in input) hasAny(keywords []string) bool {
	for _, k := range keywords {
		if in.words[k] {
			return true
		}
	}
	return false
}

func (in input) hasPhrase(phrases []string) bool {
	joined := " " + strings.Join(cleanTokens(in.tokens), " ") + " "
	for _, p := range phrases {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}

func (r *Resolver) income(in input, _ entity.Snapshot) entity.RichPayload {
	if !in.hasAny(incomeKeywords) && !incomeSourcePattern.MatchString(in.folded) {
		return nil
	}

	amount, ok := extractAnchoredAmount(in.folded, incomeSourcePattern, incomeKeywordAmount)
	if !ok {
		return nil
	}

	return entity.TransactionPayload{
		Type:        entity.TransactionIncome,
		Amount:      amount,
		Description: r.describe(in),
		Category:    IncomeCategory,
	}
}

func (r *Resolver) expense(in input, _ entity.Snapshot) entity.RichPayload {
	amount, ok := extractPurchasePrice(in.folded)
	if !ok {
		if !in.hasAny(expenseKeywords) && !expensePlacePattern.MatchString(in.folded) {
			return nil
		}
		amount, ok = extractAnchoredAmount(in.folded, expensePlacePattern, expenseKeywordAmount)
		if !ok {
			return nil
		}
	}

	return entity.TransactionPayload{
		Type:        entity.TransactionExpense,
		Amount:      amount,
		Description: r.describe(in),
	}
}

func (r *Resolver) balance(in input, snap entity.Snapshot) entity.RichPayload {
	if !in.hasAny(balanceKeywords) && !in.hasPhrase(balancePhrases) {
		return nil
	}
	if len(snap.Accounts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(snap.Accounts))
	for id := range snap.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := entity.BalancePayload{Total: decimal.Zero}
	var oldest time.Time
	for _, id := range ids {
		a := snap.Accounts[id]
		out.Accounts = append(out.Accounts, a)
		out.Total = out.Total.Add(a.Balance)
		if oldest.IsZero() || a.SyncedAt.Before(oldest) {
			oldest = a.SyncedAt
		}
	}
	out.SyncedAt = oldest

	return out
}

func (r *Resolver) cards(in input, snap entity.Snapshot) entity.RichPayload {
	if !in.hasAny(cardKeywords) || len(snap.Cards) == 0 {
		return nil
	}

	ids := make([]string, 0, len(snap.Cards))
	for id := range snap.Cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := entity.CardsListPayload{Cards: make([]entity.CardUsage, 0, len(ids))}
	for _, id := range ids {
		out.Cards = append(out.Cards, snap.Cards[id])
	}
	return out
}

func (r *Resolver) menu(in input, _ entity.Snapshot) entity.RichPayload {
	if !in.hasAny(menuKeywords) {
		return nil
	}

	return entity.MenuPayload{
		Title: "Posso ajudar com",
		Options: []entity.MenuOption{
			{ID: "balance", Label: "Ver saldo", Command: "saldo"},
			{ID: "cards", Label: "Meus cartões", Command: "cartões"},
			{ID: "expense", Label: "Registrar gasto", Command: "gastei 50 no mercado"},
			{ID: "income", Label: "Registrar receita", Command: "recebi 500 do freela"},
		},
	}
}

// describe prefers a known vocabulary word, then the word after a preposition.
func (r *Resolver) describe(in input) string {
	if d, ok := r.vocab.Lookup(cleanTokens(in.tokens)); ok {
		return d
	}

	for i := 0; i+1 < len(in.tokens); i++ {
		if !prepositions[in.tokens[i].clean] {
			continue
		}
		next := in.tokens[i+1]
		if isNumeric(next.raw) || prepositions[next.clean] || determiners[next.clean] {
			continue
		}
		return capitalize(next.raw)
	}

	return ""
}
