/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mikesmitty/gesture-predictor/cmd"

func main() {
	cmd.Execute()
}
