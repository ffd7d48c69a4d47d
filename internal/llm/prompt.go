package llm

import (
	"fmt"
	"strings"
)

// SystemMessage is sent with every provider request.
const SystemMessage = "You are a meticulous document transcription assistant. " +
	"You read scanned pages and reproduce their content as well-formed XML. " +
	"Never invent content that is not visible on the page. " +
	"Escape the characters &, < and > inside text. " +
	"Answer with XML only, without commentary or code fences."

const pagePreambleTemplate = "The image below is page %s of a scanned document. " +
	"Transcribe every piece of text on it, keeping the reading order. " +
	"Use elements such as <title>, <heading>, <paragraph>, <list>, <item>, <table>, <row>, <cell>, " +
	"<signature> and <stamp> to describe the structure you see."

const pageSuffixTemplate = "Wrap the whole transcription of page %s in a single " +
	"<page number=\"%s\"> element and close it with </page>. " +
	"Do not output anything after the closing tag."

// NamingTemplate is filled with the document XML at the {XML} placeholder.
const NamingTemplate = `Below is the XML transcription of a scanned document.

<document_xml>
{XML}
</document_xml>

Propose a descriptive file name for this document. Answer with exactly these
top-level elements and nothing else:

<reasoning>
  <language>main language of the document</language>
  <document_type>
    <analysis>what kind of document this is and why</analysis>
    <type_name>short name of the document type</type_name>
  </document_type>
  <type_abbreviation>
    <analysis>how the type is usually abbreviated</analysis>
    <type_abbr>the abbreviation</type_abbr>
  </type_abbreviation>
  <important_date>
    <analysis>which date matters most and why</analysis>
    <date>that date as YYYY-MM-DD, or empty</date>
  </important_date>
  <main_entities>
    <analysis>people and organizations the document is about</analysis>
    <entities>the main entities, comma separated</entities>
  </main_entities>
  <document_summary>
    <analysis>what the document says</analysis>
    <formatting_process>how the file name below was put together</formatting_process>
    <summary>one short sentence about the document</summary>
  </document_summary>
</reasoning>
<file_name>the proposed name, in the document's language, built from the date, the type abbreviation and the main entities, without extension and without the characters / \ : * ? " &lt; &gt; |</file_name>`

// PagePreamble is the text block placed before the page image.
func PagePreamble(pageIndex string) string {
	return fmt.Sprintf(pagePreambleTemplate, pageIndex)
}

// PageSuffix is the text block placed after the page image.
func PageSuffix(pageIndex string) string {
	return fmt.Sprintf(pageSuffixTemplate, pageIndex, pageIndex)
}

// PageOpenTag is the pre-seeded assistant turn for a page request.
func PageOpenTag(pageIndex string) string {
	return `<page number="` + pageIndex + `">`
}

// BuildNamingPrompt substitutes documentXML into NamingTemplate.
func BuildNamingPrompt(documentXML string) string {
	return strings.Replace(NamingTemplate, "{XML}", documentXML, 1)
}
