package rental

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeStatus folds a raw status string for comparison, so "Concluído",
// "concluido" and " CONCLUIDO " compare equal.
func NormalizeStatus(raw string) string {
	return Fold(raw)
}

// Fold strips diacritics, lowers case and collapses "_", "-" and runs of
// whitespace to a single space.
func Fold(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}


var statusAliases = map[string]Status{
	"active":     StatusActive,
	"ativo":      StatusActive,
	"ativa":      StatusActive,
	"em aberto":  StatusActive,
	"aberta":     StatusActive,
	"reativada":  StatusActive,
	"completed":  StatusCompleted,
	"concluido":  StatusCompleted,
	"concluida":  StatusCompleted,
	"finalizado": StatusCompleted,
	"finalizada": StatusCompleted,
	"devolvido":  StatusCompleted,
	"devolvida":  StatusCompleted,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"cancelado":  StatusCancelled,
	"cancelada":  StatusCancelled,
}

// ParseStatus maps a raw stored status (any casing, with or without accents) to
// a Status.
func ParseStatus(raw string) (Status, bool) {
	s, ok := statusAliases[NormalizeStatus(raw)]
	return s, ok
}

var bucketAliases = map[string]Bucket{
	"all":                  BucketAll,
	"todas":                BucketAll,
	"todos":                BucketAll,
	"":                     BucketAll,
	"active":               BucketActive,
	"ativas":               BucketActive,
	"ativa":                BucketActive,
	"expired":              BucketExpired,
	"overdue":              BucketExpired,
	"vencidas":             BucketExpired,
	"vencida":              BucketExpired,
	"atrasadas":            BucketExpired,
	"em atraso":            BucketExpired,
	"completed":            BucketCompleted,
	"concluidas":           BucketCompleted,
	"concluida":            BucketCompleted,
	"awaiting return":      BucketAwaitingReturn,
	"aguardando devolucao": BucketAwaitingReturn,
	"cancelled":            BucketCancelled,
	"canceladas":           BucketCancelled,
}

// ParseBucket maps a filter name to a Bucket.
func ParseBucket(raw string) (Bucket, bool) {
	b, ok := bucketAliases[NormalizeStatus(raw)]
	return b, ok
}
