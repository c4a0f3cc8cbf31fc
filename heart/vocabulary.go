package heart

import "strings"

// aliases maps lower-cased spellings found in the raw UCI dump and in API
// traffic onto the canonical API vocabulary.
var aliases = map[string]map[string]string{
	ColSex: {
		"male": "Male", "m": "Male",
		"female": "Female", "f": "Female",
	},
	ColCP: {
		"typical": "typical", "typical angina": "typical",
		"atypical": "atypical", "atypical angina": "atypical",
		"non-anginal": "non-anginal", "non-anginal pain": "non-anginal",
		"asymptomatic": "asymptomatic",
	},
	ColFbs: {
		"true": "True", "1": "True", "yes": "True",
		"false": "False", "0": "False", "no": "False",
	},
	ColRestecg: {
		"normal": "normal",
		"stt":    "stt", "st-t abnormality": "stt", "st-t wave abnormality": "stt",
		"hypertrophy": "hypertrophy", "lv hypertrophy": "hypertrophy",
	},
	ColExang: {
		"yes": "Yes", "true": "Yes", "1": "Yes",
		"no": "No", "false": "No", "0": "No",
	},
	ColSlope: {
		"upsloping": "upsloping", "flat": "flat", "downsloping": "downsloping",
	},
	ColThal: {
		"normal": "normal",
		"fixed":  "fixed", "fixed defect": "fixed",
		"reversable": "reversable", "reversable defect": "reversable",
		"reversible": "reversable", "reversible defect": "reversable",
	},
}

// Canonicalize maps a known spelling of a categorical value onto the API
// vocabulary. Unknown values, the Missing sentinel and values of
// non-categorical columns are returned unchanged.
func Canonicalize(column, value string) string {
	table, ok := aliases[column]
	if !ok || value == Missing {
		return value
	}
	if canon, ok := table[strings.ToLower(strings.TrimSpace(value))]; ok {
		return canon
	}
	return value
}
