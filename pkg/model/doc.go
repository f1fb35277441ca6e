// Package model defines the data shared by every part of the wizard engine:
// step and field definitions, declarative validation rules, conditional rules,
// the canonical mapping between UI field aliases and backend DTO fields, and
// the serialisable session state.
//
// Definitions are plain data. They are usually decoded from the embedded
// definition files in pkg/wizards through pkg/definition, which also checks the
// structural invariants (each field belongs to exactly one step, rule targets
// live on the rule's step, mapping aliases reference declared fields).
// Validation rules follow the same {Kind, Params} shape the registry and the
// resolver consume, so a rule can be tested in isolation from any session.
package model
