// Package config defines the format-agnostic model of a pipeline definition.
//
// A pipeline declares a trigger set, an environment matrix, the per-job step
// commands, and the coverage artifact settings. Loaders for concrete formats
// (HCL, YAML) translate their input into this model. Step commands are kept
// as unevaluated hcl.Expression values so that each job instance can evaluate
// them against its own matrix combination.
package config
