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

package conf

// LoggerConfig 定义日志配置
//
// 日志轮转策略：
//   - 当单个文件大小超过 MaxSize MB 时，自动切分到新文件
//   - 超过 MaxBackups 数量或 MaxAge 天数的旧文件会被自动删除
//   - 启用 Compress 后，旧文件会被压缩为 .gz 格式以节省空间
type LoggerConfig struct {
	// LogFile 日志文件名 (留空则只输出到控制台)
	LogFile string `json:"name" yaml:"name"`

	// Level 日志级别: trace, debug, info, warn, error, fatal
	Level string `json:"level" yaml:"level"`

	// MaxSize 单个日志文件最大大小 (MB)
	MaxSize int `json:"max_size" yaml:"max_size"`

	// MaxBackups 保留的旧日志文件数量
	MaxBackups int `json:"max_count" yaml:"max_count"`

	// MaxAge 日志文件保留天数
	MaxAge int `json:"max_day" yaml:"max_day"`

	// Compress 是否压缩旧日志文件
	Compress bool `json:"compress" yaml:"compress"`

	// LocalTime 是否使用本地时间命名日志文件
	LocalTime bool `json:"local_time" yaml:"local_time"`

	// Console 是否同时输出到控制台
	Console bool `json:"console" yaml:"console"`

	// JSONFormat 是否使用 JSON 格式输出到文件
	JSONFormat bool `json:"json_format" yaml:"json_format"`
}

// DefaultLoggerConfig 返回默认日志配置
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		LogFile:    "",
		Level:      "info",
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		LocalTime:  true,
		Console:    true,
		JSONFormat: true,
	}
}

// Validate 验证配置有效性
func (c *LoggerConfig) Validate() error {
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups < 0 {
		c.MaxBackups = 10
	}
	if c.MaxAge < 0 {
		c.MaxAge = 30
	}
	return nil
}
