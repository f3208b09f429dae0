// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/addonctl/cmd/addonctl"

func main() {
	cmd.Execute()
}
