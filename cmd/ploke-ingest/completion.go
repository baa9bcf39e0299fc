// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/josephleblanc/ploke-ingest/internal/errors"
)

// bashCompletionTemplate is the bash completion script for ploke-ingest.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for ploke-ingest
# Installation:
#   source <(ploke-ingest completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(ploke-ingest completion bash)' >> ~/.bashrc

_ploke_ingest_completion() {
    local cur prev commands
    commands="init index status query reset completion"

    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --config --json --quiet --no-color" -- ${cur}) )
        return 0
    fi

    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        index)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--full --debug --metrics-addr" -- ${cur}) )
            fi
            ;;
        status)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--json" -- ${cur}) )
            fi
            ;;
        query)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--json --limit --timeout" -- ${cur}) )
            fi
            ;;
        reset)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--yes" -- ${cur}) )
            fi
            ;;
        init)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--force -y --embedding-provider" -- ${cur}) )
            fi
            ;;
        completion)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _ploke_ingest_completion ploke-ingest
`

// zshCompletionTemplate is the zsh completion script for ploke-ingest.
const zshCompletionTemplate = `#compdef ploke-ingest

# Zsh completion script for ploke-ingest
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      ploke-ingest completion zsh > "${fpath[1]}/_ploke-ingest"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_ploke_ingest() {
    local -a commands
    commands=(
        'init:Create .ploke-ingest/project.yaml configuration'
        'index:Parse and embed the current crate/workspace'
        'status:Show local index status'
        'query:Execute a CozoScript query'
        'reset:Delete local index data'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--config[Path to crate root]:crate root:_files -/' \
        '--json[Output as JSON where supported]' \
        '--quiet[Suppress progress output]' \
        '--no-color[Disable colored output]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                index)
                    _arguments \
                        '--full[Delete existing local data and reindex from scratch]' \
                        '--debug[Enable debug logging]' \
                        '--metrics-addr[Prometheus metrics address]:address:'
                    ;;
                status)
                    _arguments \
                        '--json[Output as JSON]'
                    ;;
                query)
                    _arguments \
                        '--json[Output as JSON]' \
                        '--limit[Row limit]:limit:' \
                        '--timeout[Query timeout]:timeout:' \
                        '1:cozoscript query:'
                    ;;
                reset)
                    _arguments \
                        '--yes[Confirm the reset]'
                    ;;
                init)
                    _arguments \
                        '--force[Overwrite existing configuration]' \
                        '-y[Non-interactive mode]' \
                        '--embedding-provider[Embedding provider]:provider:(ollama nomic mock)'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_ploke_ingest
`

// fishCompletionTemplate is the fish completion script for ploke-ingest.
const fishCompletionTemplate = `# Fish completion script for ploke-ingest
# Installation:
#   1. Load completions for current session:
#      ploke-ingest completion fish | source
#   2. Install permanently:
#      ploke-ingest completion fish > ~/.config/fish/completions/ploke-ingest.fish

complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "init" -d "Create .ploke-ingest/project.yaml configuration"
complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "index" -d "Parse and embed the current crate/workspace"
complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "status" -d "Show local index status"
complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "query" -d "Execute a CozoScript query"
complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "reset" -d "Delete local index data (destructive!)"
complete -c ploke-ingest -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

complete -c ploke-ingest -l version -d "Show version and exit"
complete -c ploke-ingest -l config -d "Path to crate root" -r
complete -c ploke-ingest -l json -d "Output as JSON where supported"
complete -c ploke-ingest -l quiet -d "Suppress progress output"
complete -c ploke-ingest -l no-color -d "Disable colored output"

complete -c ploke-ingest -n "__fish_seen_subcommand_from index" -l full -d "Delete existing local data and reindex from scratch"
complete -c ploke-ingest -n "__fish_seen_subcommand_from index" -l debug -d "Enable debug logging"
complete -c ploke-ingest -n "__fish_seen_subcommand_from index" -l metrics-addr -d "Prometheus metrics address" -r

complete -c ploke-ingest -n "__fish_seen_subcommand_from status" -l json -d "Output as JSON"

complete -c ploke-ingest -n "__fish_seen_subcommand_from query" -l json -d "Output as JSON"
complete -c ploke-ingest -n "__fish_seen_subcommand_from query" -l limit -d "Row limit" -r
complete -c ploke-ingest -n "__fish_seen_subcommand_from query" -l timeout -d "Query timeout" -r

complete -c ploke-ingest -n "__fish_seen_subcommand_from reset" -l yes -d "Confirm the reset"

complete -c ploke-ingest -n "__fish_seen_subcommand_from init" -l force -d "Overwrite existing configuration"
complete -c ploke-ingest -n "__fish_seen_subcommand_from init" -l embedding-provider -d "Embedding provider" -r

complete -c ploke-ingest -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c ploke-ingest -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c ploke-ingest -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, generating
// shell-specific completion scripts for bash, zsh, or fish shells.
//
// Usage:
//
//	ploke-ingest completion [bash|zsh|fish]
func runCompletion(args []string) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke-ingest completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Examples:
  ploke-ingest completion bash
  source <(ploke-ingest completion bash)
  ploke-ingest completion zsh > "${fpath[1]}/_ploke-ingest"
  ploke-ingest completion fish > ~/.config/fish/completions/ploke-ingest.fish

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'ploke-ingest completion bash', 'ploke-ingest completion zsh', or 'ploke-ingest completion fish'",
		), false)
	}

	shell := fs.Arg(0)

	switch shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'ploke-ingest completion bash', 'ploke-ingest completion zsh', or 'ploke-ingest completion fish'",
		), false)
	}
}
