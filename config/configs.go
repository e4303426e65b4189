package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

var Bind string
var DSN string
var Dbkind string
var Storage string
var Documents string
var Layers string
var LockTTL int
var MainConfig Config

type Config struct {
	XMLName  xml.Name `xml:"config"`
	Bind     string   `xml:"bind"`
	Dbkind   string   `xml:"dbkind"`
	Dbfile   string   `xml:"dbfile"`
	Dbname   string   `xml:"dbname"`
	Host     string   `xml:"host"`
	Port     string   `xml:"port"`
	Username string   `xml:"user"`
	Password string   `xml:"password"`
	Storage  string   `xml:"storage"`
	LockTTL  int      `xml:"lockttl"`
}

func init() {

	xmlFile, err := os.Open("config.xml")
	if err == nil {
		defer xmlFile.Close()
		xmlDecoder := xml.NewDecoder(xmlFile)
		if err = xmlDecoder.Decode(&MainConfig); err != nil {
			fmt.Println("Error decoding XML:", err)
		}
	}

	// fall back to a local sqlite workspace when no config.xml is present
	if MainConfig.Bind == "" {
		MainConfig.Bind = ":8686"
	}
	if MainConfig.Dbkind == "" {
		MainConfig.Dbkind = "sqlite"
	}
	if MainConfig.Dbfile == "" {
		MainConfig.Dbfile = "ohmg.db"
	}
	if MainConfig.Storage == "" {
		MainConfig.Storage = "storage"
	}
	if MainConfig.LockTTL <= 0 {
		MainConfig.LockTTL = 1800
	}

	Bind = MainConfig.Bind
	Dbkind = MainConfig.Dbkind
	Storage = MainConfig.Storage
	Documents = filepath.Join(Storage, "documents")
	Layers = filepath.Join(Storage, "layers")
	LockTTL = MainConfig.LockTTL

	DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", MainConfig.Host, MainConfig.Username, MainConfig.Password, MainConfig.Dbname, MainConfig.Port)

}
