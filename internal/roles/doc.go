// Package roles is the role catalog: immutable role variant definitions, the
// wake-up frequency rules that decide which nights a variant acts on, and the
// named behaviours and predicates variants plug in. Catalogs load from YAML
// (one file or a directory of files) or from DefaultDefinition.
package roles
