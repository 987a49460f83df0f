// Copyright (c) OpsMind Authors.
// Licensed under the MIT License.

/*
Package config loads the external configuration of the prompt-budget core:
the model catalog (context windows and reserved completion tokens), the
per-model pricing table, optimizer defaults, and logging.

Precedence is defaults, then YAML file, then environment variables.
Validation fails fast on configuration errors (unknown model, non-positive
context window, minimums exceeding ceilings) rather than proceeding with a
guessed default.
*/
package config
