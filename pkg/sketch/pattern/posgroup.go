package pattern

import "strings"

// posGroups maps coarse POS class names to the tags they cover, spanning
// both Penn-style and UD tag sets. The engine treats tags as opaque
// elsewhere; only pos_group predicates consult this table.
var posGroups = map[string][]string{
	"noun": {"NN", "NNS", "NNP", "NNPS", "NOUN", "PROPN"},
	"verb": {"VB", "VBD", "VBG", "VBN", "VBP", "VBZ", "MD", "VERB", "AUX"},
	"adj":  {"JJ", "JJR", "JJS", "ADJ"},
	"adv":  {"RB", "RBR", "RBS", "WRB", "ADV"},
	"pron": {"PRP", "PRP$", "WP", "WP$", "PRON"},
	"det":  {"DT", "PDT", "WDT", "DET"},
	"prep": {"IN", "ADP"},
	"num":  {"CD", "NUM"},
	"conj": {"CC", "CCONJ", "SCONJ"},
	"part": {"RP", "TO", "POS", "PART"},
	"intj": {"UH", "INTJ"},
}

// MatchPOSGroup reports whether a tag belongs to the named coarse class.
// Unknown class names match nothing.
func MatchPOSGroup(group, tag string) bool {
	tags, ok := posGroups[strings.ToLower(group)]
	if !ok {
		return false
	}
	tag = strings.ToUpper(tag)
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
