package format

import "regexp"

// Built-in layout names
const (
	Standard = "standard"
	Compact  = "compact"
	Simple   = "simple"
	Detailed = "detailed"
	List     = "list"
)

const (
	lead    = `[🚀💎⚡🔥\x{FE0F}]`
	name    = `([A-Z][A-Za-z0-9 \t\-]*[A-Za-z0-9])`
	num     = `\$?\s*([\d][\d,]*(?:\.\d+)?|\.\d+)`
	scaled  = num + `\s*([KMBkmb]?)\b`
	pct     = `(\d+(?:\.\d+)?)\s*%`
	address = `([A-Za-z0-9]+)`
)

func rules(m map[Field]string) map[Field]Rule {
	out := make(map[Field]Rule, len(m))
	for f, p := range m {
		out[f] = Rule{Pattern: regexp.MustCompile(p)}
	}
	return out
}

// Builtin returns fresh copies of the five built-in layouts
func Builtin() []*Descriptor {
	return []*Descriptor{
		{
			Name:     Standard,
			Suffixes: DefaultSuffixes,
			Rules: rules(map[Field]string{
				FieldTokenName:  `\A\s*` + lead + `*\s*` + name,
				FieldChain:      `(?i)Chain:\s*(\w+)`,
				FieldPrice:      `(?i)Price:\s*` + num,
				FieldMarketCap:  `(?i)Market\s*Cap:\s*` + scaled,
				FieldLiquidity:  `(?i)Liquidity:\s*` + scaled,
				FieldVolume24h:  `(?i)Volume\s*24h:\s*` + scaled,
				FieldBundlesPct: `(?i)Bundles:\s*\d+\s*\(\s*` + pct + `\s*\)`,
				FieldSnipersPct: `(?i)Snipers:\s*\d+\s*\(\s*` + pct + `\s*\)`,
				FieldDevPct:     `(?i)Dev:\s*` + pct,
				FieldConfidence: `(?i)Confidence:\s*` + pct,
				FieldAddress:    `(?i)(?:Contract|CA):\s*` + address,
			}),
		},
		{
			Name:     Compact,
			Suffixes: DefaultSuffixes,
			Rules: rules(map[Field]string{
				FieldTokenName:  `(?m)^\s*` + lead + `+\s*` + name + `\s*\|`,
				FieldChain:      `(?m)\|\s*([A-Za-z]+)\s*$`,
				FieldPrice:      `💵\s*` + num,
				FieldMarketCap:  `\bMC:\s*` + scaled,
				FieldLiquidity:  `\bLIQ:\s*` + scaled,
				FieldVolume24h:  `\bVol:\s*` + scaled,
				FieldBundlesPct: `\bB:\s*` + pct,
				FieldSnipersPct: `\bS:\s*` + pct,
				FieldDevPct:     `\bDev:\s*` + pct,
				FieldConfidence: `\bScore:\s*` + pct,
				FieldAddress:    `📝\s*` + address,
			}),
		},
		{
			Name:     Simple,
			Suffixes: DefaultSuffixes,
			Rules: rules(map[Field]string{
				FieldTokenName: `(?m)^\s*` + lead + `+\s*` + name,
				FieldChain:     `(?im)^\s*(Solana|Ethereum|BSC|Base)\s*$`,
				FieldMarketCap: num + `\s*([KMBkmb]?)\s*MC\b`,
				FieldAddress:   `(?i)(?:Contract|CA|Address):\s*` + address,
			}),
		},
		{
			Name:     Detailed,
			Suffixes: DefaultSuffixes,
			Rules: rules(map[Field]string{
				FieldTokenName:  `(?m)^\s*` + lead + `+\s*` + name,
				FieldChain:      `(?i)Chain:\s*(\w+)`,
				FieldPrice:      `(?i)(?:Entry\s+)?Price:\s*` + num,
				FieldMarketCap:  `(?i)Market\s*Cap:\s*` + scaled,
				FieldLiquidity:  `(?i)Liquidity:\s*` + scaled,
				FieldVolume24h:  `(?i)Volume\s*24h:\s*` + scaled,
				FieldBundlesPct: `(?i)Bundles:\s*\d+\s*\(\s*` + pct + `\s*\)`,
				FieldSnipersPct: `(?i)Snipers:\s*\d+\s*\(\s*` + pct + `\s*\)`,
				FieldDevPct:     `(?i)Dev(?:\s+Holdings)?:\s*` + pct,
				FieldConfidence: `(?i)Confidence(?:\s+Score)?:\s*` + pct,
				FieldAddress:    `(?i)Contract:\s*` + address,
			}),
		},
		{
			Name:     List,
			Suffixes: DefaultSuffixes,
			Rules: rules(map[Field]string{
				FieldTokenName: `(?:New Signal|Signal):\s*` + name,
				FieldChain:     `(?i)Chain:\s*(\w+)`,
				FieldPrice:     `(?i)Price:\s*` + num,
				FieldMarketCap: `\bMC:\s*` + scaled,
				FieldLiquidity: `(?i)\bLiq:\s*` + scaled,
				FieldVolume24h: `(?i)\bVol:\s*` + scaled,
				FieldAddress:   `\bCA:\s*` + address,
			}),
		},
	}
}
