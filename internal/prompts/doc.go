// Package prompts holds the summary prompt templates and the rules for
// turning one into model messages.
//
// Built-in templates are Go code so they ship with the binary and can be
// checked by tests; the config file may override or extend the table.
// A template's name also carries meaning: names containing "_en" target
// English output, and a dual family name (see IsDualFamily) expands into
// "<family>_insight_v2" and "<family>_chronological_v2".
package prompts
