// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/chainofclaw/COC-sub002/params"
)

const banner = `
  ██████╗ ██████╗  ██████╗
 ██╔════╝██╔═══██╗██╔════╝
 ██║     ██║   ██║██║
 ██║     ██║   ██║██║
 ╚██████╗╚██████╔╝╚██████╗
  ╚═════╝ ╚═════╝  ╚═════╝
`

const usageText = `coc [options]

快速启动：
  coc                              启动节点（默认配置）
  coc --config coc.yaml            从配置文件启动
  coc --rpc.port 8545              指定 HTTP RPC 端口

验证：
  coc --node.key 0x...             指定节点私钥（出块签名）

详细帮助：
  coc --help                       查看所有选项`

func main() {
	fmt.Print(banner)

	app := &cli.App{
		Name:                   "coc",
		Usage:                  "COC 区块链节点",
		UsageText:              usageText,
		Version:                params.VersionWithCommit(params.GitCommit, ""),
		Flags:                  AllFlags(),
		UseShortOptionHandling: true,
		Action:                 appRun,
		Suggest:                true,
		EnableBashCompletion:   true,
		Copyright:              "Copyright 2022-2026 The COC Authors",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
