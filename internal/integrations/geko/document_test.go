package geko

import (
	"errors"
	"testing"
)

func TestParseDocumentMalformed(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unclosed element", `<geko><products><product></products></geko>`},
		{"empty payload", ``},
		{"garbage", `to nie jest xml`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDocument([]byte(tc.doc)); !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestParseDocumentTree(t *testing.T) {
	root, err := ParseDocument([]byte(`<geko><products><product code="GK-100"><name>Młotek</name></product></products></geko>`))
	if err != nil {
		t.Fatal(err)
	}
	p := root.Child("products").Child("product")
	if p == nil {
		t.Fatal("product node missing")
	}
	if got := p.Attr("code"); got != "GK-100" {
		t.Fatalf("attr code=%q", got)
	}
	if got := p.Value("name"); got != "Młotek" {
		t.Fatalf("name=%q", got)
	}
}

func TestExtractRecordsShapes(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want int
	}{
		{"products_product", `<geko><products><product/><product/></products></geko>`, 2},
		{"offer_nested", `<root><offer><products><product/></products></offer></root>`, 1},
		{"items_item", `<export><items><item/><item/><item/></items></export>`, 3},
		{"goods_good", `<x><goods><good/></goods></x>`, 1},
		{"root_is_products", `<products><product/></products>`, 1},
		{"singular_product", `<root><product/></root>`, 1},
		{"unknown_shape", `<root><weird><thing/></weird></root>`, 0},
		{"empty_root", `<root/>`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root, err := ParseDocument([]byte(tc.doc))
			if err != nil {
				t.Fatal(err)
			}
			if got := len(ExtractRecords(root)); got != tc.want {
				t.Fatalf("got %d records, want %d", got, tc.want)
			}
		})
	}
}

func TestNodeXMLRoundtrip(t *testing.T) {
	root, err := ParseDocument([]byte(`<product b="2" a="1"><name>Kl&amp;ucz</name></product>`))
	if err != nil {
		t.Fatal(err)
	}
	got := root.XML()
	want := `<product a="1" b="2"><name>Kl&amp;ucz</name></product>`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
