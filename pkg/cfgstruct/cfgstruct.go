// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package cfgstruct binds configuration structs to flag sets using
// `help` and `default` struct tags.
package cfgstruct

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Bind sets flags on a FlagSet from the fields of config, which must be a
// pointer to a struct. Nested structs become dot-separated prefixes.
func Bind(flags *pflag.FlagSet, config interface{}) {
	ptr := reflect.ValueOf(config)
	if ptr.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("invalid config type: %s, expected pointer to struct", ptr.Type()))
	}
	val := ptr.Elem()
	if val.Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %s, expected struct", val.Type()))
	}
	bindConfig(flags, "", val)
}

func bindConfig(flags *pflag.FlagSet, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field, fieldval := typ.Field(i), val.Field(i)
		if !fieldval.CanAddr() {
			continue
		}

		flagname := hyphenate(snakeCase(field.Name))
		if prefix != "" {
			flagname = prefix + "." + flagname
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			bindConfig(flags, flagname, fieldval)
			continue
		}

		help := field.Tag.Get("help")
		def := field.Tag.Get("default")
		fieldaddr := fieldval.Addr().Interface()

		switch field.Type.Kind() {
		case reflect.String:
			flags.StringVar(fieldaddr.(*string), flagname, def, help)
		case reflect.Bool:
			val, _ := strconv.ParseBool(def)
			flags.BoolVar(fieldaddr.(*bool), flagname, val, help)
		case reflect.Int:
			val, _ := strconv.ParseInt(def, 0, strconv.IntSize)
			flags.IntVar(fieldaddr.(*int), flagname, int(val), help)
		case reflect.Int64:
			if field.Type == reflect.TypeOf(time.Duration(0)) {
				val, err := time.ParseDuration(def)
				if err != nil {
					val = 0
				}
				flags.DurationVar(fieldaddr.(*time.Duration), flagname, val, help)
				break
			}
			val, _ := strconv.ParseInt(def, 0, 64)
			flags.Int64Var(fieldaddr.(*int64), flagname, val, help)
		case reflect.Float64:
			val, _ := strconv.ParseFloat(def, 64)
			flags.Float64Var(fieldaddr.(*float64), flagname, val, help)
		default:
			panic(fmt.Sprintf("invalid field type: %s", field.Type))
		}
	}
}

func snakeCase(name string) string {
	var out []rune
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' &&
			(name[i-1] < 'A' || name[i-1] > 'Z') {
			out = append(out, '-')
		}
		out = append(out, r)
	}
	return strings.ToLower(string(out))
}

func hyphenate(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}
